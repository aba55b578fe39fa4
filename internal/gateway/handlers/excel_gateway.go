package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	inventory "warehouse-system/internal/services/inventory/handler"
	"warehouse-system/internal/spreadsheet"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxUploadSize   = 10 << 20
)

type ExcelHTTPHandler struct {
	inventory *inventory.InventoryHandler
	logger    *zap.Logger
}

func NewExcelHTTPHandler(svc *inventory.InventoryHandler, logger *zap.Logger) *ExcelHTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelHTTPHandler{
		inventory: svc,
		logger:    logger,
	}
}

func (h *ExcelHTTPHandler) table(c *gin.Context) (inventory.Table, bool) {
	table, err := inventory.ParseTable(c.Param("table"))
	if err != nil {
		respondError(c, h.logger, err)
		return "", false
	}
	return table, true
}

func (h *ExcelHTTPHandler) sendWorkbook(c *gin.Context, table inventory.Table, suffix string, header []string, rows [][]string) {
	data, err := spreadsheet.Write(string(table), header, rows)
	if err != nil {
		h.logger.Error("Failed to render workbook", zap.String("table", string(table)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to render workbook"))
		return
	}
	filename := fmt.Sprintf("%s%s.xlsx", table, suffix)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Import expects a multipart upload in the "file" field.
func (h *ExcelHTTPHandler) Import(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("A spreadsheet must be uploaded in the file field"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Uploaded file could not be opened"))
		return
	}
	defer file.Close()

	header, records, err := spreadsheet.Read(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Uploaded file is not a valid spreadsheet"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := h.inventory.Import(ctx, table, header, records)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Data imported successfully", result))
}

func (h *ExcelHTTPHandler) Export(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	header, rows, err := h.inventory.Export(ctx, table)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.sendWorkbook(c, table, "", header, rows)
}

func (h *ExcelHTTPHandler) Template(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}

	header, err := inventory.Template(table)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.sendWorkbook(c, table, "_template", header, nil)
}
