package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	InvoiceExtractFileDescription = `Extract the header fields and line items of an Italian invoice.

**When to use:** You need the supplier, VAT number, fiscal code, invoice number, dates and amounts of a PDF or FatturaPA XML invoice.

**How it works:** XML invoices are read from their FatturaElettronica structure. PDFs are read from the embedded text layer, then pdftotext, then OCR on the first page when the text is too short.

**Examples:**
• Read a supplier invoice: "Extract fattura_2024_118.pdf and tell me the total"
• Check an electronic invoice: "What is the due date in IT01234567890_00042.xml?"
• Inspect a scan: "Extract scansione.pdf with include_text to see what OCR read"

**Common workflows:**
1. Bookkeeping: invoice_search_directory → invoice_extract_file → copy amounts
2. Scanned documents: invoice_extract_file → check acquisition.source → verify amounts against the text

**Notes:** Amounts are reconciled so that imponibile + iva = totale whenever two of the three are known. Line items are only available for XML invoices.`

	InvoiceSearchDirectoryDescription = `Find PDF and XML invoices in the inbox with fuzzy filename search.

**When to use:** You do not know the exact filename, or you want to see which invoices are available.

**Examples:**
• List everything: "Which invoices are in the inbox?"
• Find a supplier: "Search for invoices from rossi"
• Narrow by folder: "Search 2024/marzo for enel"

**Notes:** Hidden folders and symlinked files are skipped. Directories outside the inbox are rejected.`

	InvoiceValidateFileDescription = `Check that a file is a readable PDF or well-formed XML invoice.

**When to use:** Before extraction, to rule out damaged downloads or unsupported formats.

**Examples:**
• "Is fattura_rossi.pdf a valid PDF?"
• "Check every XML in the inbox before importing"

**Notes:** Empty files, files over the size limit and files that are neither PDF nor XML are reported as invalid with a reason.`

	InvoiceServerInfoDescription = `Get the server configuration, inbox contents, OCR tool availability and usage guidance.

**When to use:** At the start of a session, or when a scanned PDF returns no text and you need to know whether OCR is installed.`

	InvoiceImportFileDescription = `Extract an invoice from the inbox and save it to the archive.

**When to use:** The invoice should be searchable later through invoice_list, exported, or downloaded from object storage.

**Examples:**
• "Import fattura_rossi.xml"
• "Import every PDF found by the last search"

**Notes:** Requires the database. The original file is uploaded to object storage when it is configured; the stored record keeps the bucket and key.`

	InvoiceListDescription = `List archived invoices with text search, issue date range, ordering and paging.

**When to use:** You need invoices already imported, for example to reconcile a month or find a supplier.

**Examples:**
• "List invoices from rossi issued in March 2024"
• "Show the ten largest invoices" (order_by totale, order_dir desc, limit 10)

**Notes:** q matches supplier name, VAT number, fiscal code, invoice number and filename, case-insensitively.`

	InvoiceGetDescription = `Get one archived invoice with all its line items.

**When to use:** After invoice_list, to see the details of a single record by id.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"invoice_extract_file":     InvoiceExtractFileDescription,
	"invoice_search_directory": InvoiceSearchDirectoryDescription,
	"invoice_validate_file":    InvoiceValidateFileDescription,
	"invoice_server_info":      InvoiceServerInfoDescription,
	"invoice_import_file":      InvoiceImportFileDescription,
	"invoice_list":             InvoiceListDescription,
	"invoice_get":              InvoiceGetDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of all described tools
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
