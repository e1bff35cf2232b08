package pdf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

// Search handles discovery of invoice documents in the inbox directory
type Search struct {
	maxFileSize int64
	validator   *Validator
}

// NewSearch creates a new search handler with the specified constraints
func NewSearch(maxFileSize int64) *Search {
	return &Search{
		maxFileSize: maxFileSize,
		validator:   NewValidator(maxFileSize),
	}
}

// SearchDirectory lists PDF and XML invoices under a directory, optionally
// filtered by a fuzzy filename query
func (s *Search) SearchDirectory(req SearchDirectoryRequest) (*SearchDirectoryResult, error) {
	if req.Directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	query := strings.ToLower(strings.TrimSpace(req.Query))
	files, absDirectory, err := s.walk(req.Directory, 0, func(name string) bool {
		return s.matchesQuery(name, query)
	})
	if err != nil {
		return nil, err
	}

	return &SearchDirectoryResult{
		Files:       files,
		TotalCount:  len(files),
		Directory:   absDirectory,
		SearchQuery: req.Query,
	}, nil
}

// FindDocumentsLimited finds invoice documents in a directory, stopping after limit
func (s *Search) FindDocumentsLimited(directory string, limit int) ([]FileInfo, error) {
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	files, _, err := s.walk(directory, limit, nil)
	return files, err
}

// CountDocuments counts the valid invoice documents in a directory
func (s *Search) CountDocuments(directory string) (int, error) {
	files, err := s.FindDocumentsLimited(directory, 0)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (s *Search) walk(directory string, limit int, keep func(name string) bool) ([]FileInfo, string, error) {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("directory does not exist: %s", directory)
	}

	// Resolve the search directory to prevent traversal
	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve directory path: %w", err)
	}

	files := []FileInfo{}
	err = filepath.WalkDir(absDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Continue walking even if we encounter an error with a specific file
			return nil
		}

		if d.IsDir() {
			// Skip hidden directories to improve performance
			if strings.HasPrefix(d.Name(), ".") && path != absDirectory {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinked files may point outside the inbox
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if limit > 0 && len(files) >= limit {
			return filepath.SkipAll
		}

		kind := invoice.DetectKind(d.Name(), "")
		if kind == invoice.KindUnknown {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		// Quick validation without opening the file
		if err := s.validator.ValidateFileInfo(path, info); err != nil {
			return nil
		}

		if keep != nil && !keep(info.Name()) {
			return nil
		}

		files = append(files, FileInfo{
			Path:         path,
			Name:         info.Name(),
			Kind:         kind,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, absDirectory, nil
}

// matchesQuery performs fuzzy matching on the filename
func (s *Search) matchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}

	fileName := strings.ToLower(filename)

	// Exact substring match
	if strings.Contains(fileName, query) {
		return true
	}

	// Word-based matching on the name without extension
	nameWithoutExt := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	words := s.splitIntoWords(nameWithoutExt)
	queryWords := s.splitIntoWords(query)

	// Check if all query words are found in filename words
	for _, queryWord := range queryWords {
		found := false
		for _, word := range words {
			if strings.Contains(word, queryWord) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// splitIntoWords splits a string into words using common separators
func (s *Search) splitIntoWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return strings.ContainsRune(" _-.()[]", r)
	})
}
