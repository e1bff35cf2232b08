package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Inspection summarizes the structure of a PDF
type Inspection struct {
	Pages      int  `json:"pages"`
	Encrypted  bool `json:"encrypted"`
	PageImages int  `json:"page_images"`
}

// Inspector reads PDF structure with pdfcpu
type Inspector struct{}

// NewInspector creates a new inspector
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect reports page count, encryption and the image objects of page 1
func (i *Inspector) Inspect(data []byte) (result Inspection, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdfcpu panic: %v", rec)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return result, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return result, fmt.Errorf("failed to count pages: %w", err)
	}

	result.Pages = ctx.PageCount
	result.Encrypted = ctx.Encrypt != nil
	if ctx.Optimize != nil && ctx.PageCount > 0 {
		result.PageImages = len(pdfcpu.ImageObjNrs(ctx, 1))
	}
	return result, nil
}
