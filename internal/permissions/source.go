package permissions

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TableRow is one line of the permission table: a role, its explicitly
// granted packages and a human description.
type TableRow struct {
	Role        string
	Packages    []string
	Description string
}

type Table struct {
	Rows []TableRow
}

// FileSource loads and persists the permission table as a CSV file with
// columns Role, Allowed_Packages (comma-separated) and Description.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string {
	return s.path
}

// Load reads the table from disk. When the file is missing it writes the
// default table first and returns that.
func (s *FileSource) Load() (Table, error) {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		table := DefaultTable()
		if saveErr := s.Save(table); saveErr != nil {
			return Table{}, fmt.Errorf("write default permission table: %w", saveErr)
		}
		return table, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("open permission table: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse permission table: %w", err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("permission table %s is empty", s.path)
	}

	var table Table
	for index, record := range records {
		if index == 0 && isHeaderRecord(record) {
			continue
		}
		if len(record) < 2 {
			return Table{}, fmt.Errorf("permission table row %d has %d columns, want at least 2", index+1, len(record))
		}
		row := TableRow{
			Role:     strings.TrimSpace(record[0]),
			Packages: splitPackages(record[1]),
		}
		if len(record) > 2 {
			row.Description = strings.TrimSpace(record[2])
		}
		if row.Role == "" {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Save writes the whole table back, replacing the file atomically.
func (s *FileSource) Save(table Table) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create permission table directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create permission table: %w", err)
	}

	writer := csv.NewWriter(file)
	records := [][]string{{"Role", "Allowed_Packages", "Description"}}
	for _, row := range table.Rows {
		records = append(records, []string{row.Role, strings.Join(row.Packages, ","), row.Description})
	}
	if err := writer.WriteAll(records); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write permission table: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close permission table: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace permission table: %w", err)
	}
	return nil
}

// DefaultTable mirrors the grants shipped for a fresh installation.
func DefaultTable() Table {
	return Table{Rows: []TableRow{
		{
			Role:        RoleAssociate,
			Packages:    []string{"numpy", "pandas", "requests", "matplotlib", "seaborn", "scikit-learn"},
			Description: "Basic data science and web packages",
		},
		{
			Role:        RoleSenior,
			Packages:    []string{"tensorflow", "pytorch", "flask", "django", "fastapi", "docker-compose"},
			Description: "ML frameworks and web development tools",
		},
		{
			Role:        RoleLead,
			Packages:    []string{"kubernetes", "helm", "terraform", "ansible", "jenkins"},
			Description: "DevOps and infrastructure tools",
		},
		{
			Role:        RolePrincipal,
			Packages:    []string{"aws-cli", "azure-cli", "gcp-cli", "prometheus", "grafana", "elasticsearch"},
			Description: "Cloud platforms and monitoring tools",
		},
	}}
}

func isHeaderRecord(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "role")
}

func splitPackages(value string) []string {
	var packages []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			packages = append(packages, part)
		}
	}
	return packages
}
