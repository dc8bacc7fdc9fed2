package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"
)

// severityColors maps the parenthesized severity tags to RGB text colors
var severityColors = map[string][3]int{
	"(Critical)":      {139, 0, 0},
	"(High)":          {255, 0, 0},
	"(Medium)":        {255, 140, 0},
	"(Low)":           {0, 0, 255},
	"(Informational)": {0, 100, 0},
}

// PDFGenerator renders markdown report content to PDF files under a root
// directory, one folder per scan session or analyzed host.
type PDFGenerator struct {
	root   string
	logger *zap.Logger
}

// NewPDFGenerator creates a generator writing under the given root
func NewPDFGenerator(root string, logger *zap.Logger) (*PDFGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report root: %w", err)
	}
	return &PDFGenerator{root: root, logger: logger}, nil
}

// HostFolderName builds the per-host report folder name:
// Escaneo_IP_<ip_with_underscores>_<YYYYMMDD>
func HostFolderName(hostIP string, now time.Time) string {
	return fmt.Sprintf("Escaneo_IP_%s_%s",
		strings.ReplaceAll(hostIP, ".", "_"),
		now.Format("20060102"))
}

// Generate renders markdown content to a PDF. When hostIP is set the file
// lands in the host report folder; otherwise the session name is used as the
// folder. Returns the full path of the written file.
func (g *PDFGenerator) Generate(markdown, filename, sessionName, hostIP string) (string, error) {
	folder := sessionName
	if hostIP != "" {
		folder = HostFolderName(hostIP, time.Now())
	}

	dir := filepath.Join(g.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	fullPath := filepath.Join(dir, filename)

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	// Core fonts are cp1252; translate so Spanish accents survive
	r := &renderer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	// Cover header
	r.heading("Informe de Seguridad Generado por Molly", 24)
	pdf.Ln(10)
	r.heading("Sesion: "+folder, 20)
	if hostIP != "" {
		r.heading("Host Analizado: "+hostIP, 16)
	}
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, r.tr("Fecha: "+time.Now().Format("2006-01-02 15:04:05")), "", "L", false)
	pdf.AddPage()

	r.markdown(markdown)

	if err := pdf.OutputFileAndClose(fullPath); err != nil {
		g.logger.Error("failed to write pdf", zap.String("path", fullPath), zap.Error(err))
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}

	g.logger.Info("pdf report generated", zap.String("path", fullPath))
	return fullPath, nil
}

// renderer pairs the document with its codepage translator
type renderer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// markdown walks the report's markdown line scheme: #..#### headings,
// "-" bullets, fenced code blocks, "---" rules, and inline severity tags.
func (r *renderer) markdown(markdown string) {
	inCodeBlock := false
	var codeLines []string

	flushCode := func() {
		if len(codeLines) == 0 {
			return
		}
		r.pdf.SetFont("Courier", "", 9)
		r.pdf.SetFillColor(230, 230, 230)
		for _, cl := range codeLines {
			r.pdf.MultiCell(0, 4.5, r.tr(cl), "", "L", true)
		}
		r.pdf.SetFillColor(255, 255, 255)
		r.pdf.Ln(2)
		codeLines = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "```") {
			if inCodeBlock {
				flushCode()
				inCodeBlock = false
			} else {
				inCodeBlock = true
			}
			continue
		}
		if inCodeBlock {
			codeLines = append(codeLines, line)
			continue
		}

		switch {
		case stripped == "---":
			r.pdf.Ln(3)
			x, y := r.pdf.GetX(), r.pdf.GetY()
			w, _ := r.pdf.GetPageSize()
			r.pdf.Line(x, y, w-20, y)
			r.pdf.Ln(3)
		case strings.HasPrefix(stripped, "#### "):
			r.heading(strings.TrimPrefix(stripped, "#### "), 12)
		case strings.HasPrefix(stripped, "### "):
			r.heading(strings.TrimPrefix(stripped, "### "), 13)
		case strings.HasPrefix(stripped, "## "):
			r.heading(strings.TrimPrefix(stripped, "## "), 15)
		case strings.HasPrefix(stripped, "# "):
			r.heading(strings.TrimPrefix(stripped, "# "), 18)
		case strings.HasPrefix(stripped, "- "):
			r.body("- "+strings.TrimPrefix(stripped, "- "), 6)
		case stripped != "":
			r.body(stripped, 0)
		}
	}

	if inCodeBlock {
		flushCode()
	}
}

func (r *renderer) heading(text string, size float64) {
	r.pdf.SetFont("Helvetica", "B", size)
	r.pdf.SetTextColor(0, 0, 0)
	r.pdf.MultiCell(0, size*0.5, r.tr(stripInline(text)), "", "L", false)
	r.pdf.Ln(2)
}

func (r *renderer) body(text string, indent float64) {
	cr, cg, cb := 0, 0, 0
	style := ""
	for tag, color := range severityColors {
		if strings.Contains(text, tag) {
			cr, cg, cb = color[0], color[1], color[2]
			style = "B"
			break
		}
	}

	r.pdf.SetFont("Helvetica", style, 10)
	r.pdf.SetTextColor(cr, cg, cb)
	if indent > 0 {
		r.pdf.SetX(r.pdf.GetX() + indent)
	}
	r.pdf.MultiCell(0, 5, r.tr(stripInline(text)), "", "L", false)
	r.pdf.SetTextColor(0, 0, 0)
}

// stripInline removes markdown bold markers; fpdf renders plain text runs
func stripInline(text string) string {
	return strings.ReplaceAll(text, "**", "")
}
