package importer

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"catalog-service/internal/models"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

var (
	// ErrMalformedFile marks uploads whose container or structure cannot be
	// read at all. Bad cell values never produce it; those degrade to zero
	// values and surface as validation issues instead.
	ErrMalformedFile = errors.New("malformed file")
	// ErrUnsupportedFormat marks uploads with a file type the parser does
	// not handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ParseUpload turns one uploaded file (CSV, XLSX, or a ZIP of either) into
// staged import data plus the list of contributing filenames. hint, when
// non-empty, forces every unclassified row of a directly-uploaded file to
// that entity kind; rows carrying an explicit type column always win over
// the hint, and files inside an archive derive their own hint from their
// filename.
//
// The parser performs no validation and no store access; malformed cells
// degrade to zero values rather than failing the parse. Only an unreadable
// buffer or a broken archive is an error.
func ParseUpload(filename string, data []byte, hint models.EntityKind) (*models.ParsedImportData, []string, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("file %q has an empty buffer: %w", filename, ErrMalformedFile)
	}

	if isArchive(filename, data) {
		return parseArchive(filename, data)
	}

	if hint == "" {
		if k, ok := kindFromFilename(filename); ok {
			hint = k
		}
	}
	parsed, err := parseFile(filename, data, hint)
	if err != nil {
		return nil, nil, err
	}
	return parsed, []string{filepath.Base(filename)}, nil
}

func isArchive(filename string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return true
	}
	// XLSX is also a zip container, so only sniff when the extension is not
	// a known tabular one.
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".csv" || ext == ".xlsx" {
		return false
	}
	return bytes.HasPrefix(data, zipMagic)
}

// parseArchive parses every tabular file in a ZIP archive and merges the
// results by list concatenation per entity kind.
func parseArchive(filename string, data []byte) (*models.ParsedImportData, []string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %q: %v: %w", filename, err, ErrMalformedFile)
	}

	merged := &models.ParsedImportData{}
	var files []string

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(entry.Name)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(entry.Name, "__MACOSX/") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(base))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %q in archive: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %q in archive: %w", entry.Name, err)
		}

		hint := models.EntityKind("")
		if k, ok := kindFromFilename(base); ok {
			hint = k
		}
		parsed, err := parseFile(base, content, hint)
		if err != nil {
			return nil, nil, err
		}
		merged.Merge(parsed)
		files = append(files, base)
	}

	return merged, files, nil
}

// parseFile parses one tabular file. Row dispatch precedence: an explicit
// recognized type cell, then the caller/filename hint, then the heuristic
// classifier chain.
func parseFile(filename string, data []byte, hint models.EntityKind) (*models.ParsedImportData, error) {
	rows, err := readTable(filename, data)
	if err != nil {
		return nil, err
	}

	parsed := &models.ParsedImportData{}
	base := filepath.Base(filename)

	for _, row := range rows {
		rowNum, _ := strconv.Atoi(row["_row"])
		src := models.RowSource{SourceFile: base, Row: rowNum}

		kind := hint
		if explicit, ok := models.ParseEntityKind(row["type"]); ok && row["type"] != "" {
			kind = explicit
		}
		if kind == "" {
			kind = classifyRow(row)
		}

		switch kind {
		case models.KindCategory:
			parsed.Categories = append(parsed.Categories, parseCategoryRow(row, src))
		case models.KindItem:
			parsed.Items = append(parsed.Items, parseItemRow(row, src))
		case models.KindItemSize:
			parsed.ItemSizes = append(parsed.ItemSizes, parseSizeRow(row, src))
		case models.KindModifierGroup:
			parsed.ModifierGroups = append(parsed.ModifierGroups, parseModifierGroupRow(row, src))
		case models.KindModifier:
			parsed.Modifiers = append(parsed.Modifiers, parseModifierRow(row, src))
		case models.KindItemModifierOverride:
			parsed.ItemModifierOverrides = append(parsed.ItemModifierOverrides, parseOverrideRow(row, src))
		}
	}

	return parsed, nil
}

// readTable reads a CSV or XLSX file into rows keyed by normalized header
func readTable(filename string, data []byte) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return readXLSX(data)
	case ".csv", ".txt", "":
		return readCSV(data)
	}
	return nil, fmt.Errorf("file %q: %w", filename, ErrUnsupportedFormat)
}

func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.TrimSuffix(h, " *")
}

// readCSV parses CSV content into rows. Ragged records are tolerated; cells
// beyond the header width are dropped. Reported row numbers count records,
// not physical lines, so a quoted multi-line field shifts them relative to
// the file.
func readCSV(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %v: %w", err, ErrMalformedFile)
	}
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	var rows []map[string]string
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		rows = append(rows, row)
		lineNum++
	}

	return rows, nil
}

// readXLSX parses the first sheet of an Excel file into rows
func readXLSX(data []byte) ([]map[string]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v: %w", err, ErrMalformedFile)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	excelRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, nil
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	var rows []map[string]string
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		rows = append(rows, row)
	}

	return rows, nil
}

func parseCategoryRow(row map[string]string, src models.RowSource) models.ParsedCategory {
	return models.ParsedCategory{
		RowSource:   src,
		Name:        field(row, colName),
		Description: field(row, colDescription),
		SortOrder:   parseIntCell(field(row, colSortOrder)),
		IsActive:    boolField(row, colActive, true),
	}
}

func parseItemRow(row map[string]string, src models.RowSource) models.ParsedItem {
	priceRaw := field(row, colBasePrice)
	return models.ParsedItem{
		RowSource:       src,
		Name:            field(row, colName),
		CategoryName:    field(row, colCategoryRef),
		CategoryID:      field(row, colCategoryID),
		Description:     field(row, colDescription),
		BasePrice:       parseFloatCell(priceRaw),
		BasePriceRaw:    priceRaw,
		IsSizeable:      boolField(row, colIsSizeable, false),
		DefaultSizeCode: field(row, colDefaultSize),
		SortOrder:       parseIntCell(field(row, colSortOrder)),
		IsActive:        boolField(row, colActive, true),
	}
}

func parseSizeRow(row map[string]string, src models.RowSource) models.ParsedItemSize {
	code := field(row, colSizeCode)
	if code == "" {
		// Typed-row files carry the code in the name column.
		code = field(row, colName)
	}
	return models.ParsedItemSize{
		RowSource:        src,
		SizeCode:         code,
		Name:             field(row, colName),
		ItemName:         field(row, colItemRef),
		ItemCategoryName: field(row, colItemCatRef),
		IsDefault:        parseBoolCell(field(row, colIsDefault)),
		SortOrder:        parseIntCell(field(row, colSortOrder)),
	}
}

func parseModifierGroupRow(row map[string]string, src models.RowSource) models.ParsedModifierGroup {
	return models.ParsedModifierGroup{
		RowSource:    src,
		GroupKey:     field(row, colGroupKey),
		Name:         field(row, colName),
		Description:  field(row, colDescription),
		DisplayType:  field(row, colDisplayType),
		MinSelect:    parseIntCell(field(row, colMinSelect)),
		MaxSelect:    parseIntCell(field(row, colMaxSelect)),
		SortOrder:    parseIntCell(field(row, colSortOrder)),
		PricesBySize: parsePricesBySize(field(row, colPricesSize)),
	}
}

func parseModifierRow(row map[string]string, src models.RowSource) models.ParsedModifier {
	priceRaw := field(row, colPrice)
	return models.ParsedModifier{
		RowSource:   src,
		GroupKey:    field(row, colGroupRef),
		ModifierKey: field(row, colModifierKey),
		Name:        field(row, colName),
		Price:       parseFloatCell(priceRaw),
		PriceRaw:    priceRaw,
		MaxQuantity: parseIntCell(field(row, colMaxQuantity)),
		IsDefault:   parseBoolCell(field(row, colIsDefault)),
		SortOrder:   parseIntCell(field(row, colSortOrder)),
	}
}

func parseOverrideRow(row map[string]string, src models.RowSource) models.ParsedItemModifierOverride {
	override := models.ParsedItemModifierOverride{
		RowSource:        src,
		ItemName:         field(row, colItemRef),
		ItemCategoryName: field(row, colItemCatRef),
		GroupKey:         field(row, colGroupKey),
		ModifierKey:      field(row, colModifierKey),
		DisplayOrder:     parseIntCell(field(row, colSortOrder)),
	}
	if v := field(row, colPrice); v != "" {
		price := parseFloatCell(v)
		override.Price = &price
	}
	if v := field(row, colIsDefault); v != "" {
		isDefault := parseBoolCell(v)
		override.IsDefault = &isDefault
	}
	if v := field(row, colMaxQuantity); v != "" {
		maxQty := parseIntCell(v)
		override.MaxQuantity = &maxQty
	}
	return override
}
