package permissions

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Resolver answers package-permission questions for a role. It holds a
// versioned in-memory snapshot of the permission table; reads never touch the
// backing file, and Reload swaps in a fresh snapshot at an explicit boundary.
type Resolver struct {
	source *FileSource
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot Table
	version  int
}

func NewResolver(source *FileSource, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := &Resolver{source: source, logger: logger}
	if err := resolver.Reload(); err != nil {
		return nil, err
	}
	return resolver, nil
}

// Reload reads the backing table and replaces the snapshot.
func (r *Resolver) Reload() error {
	table, err := r.source.Load()
	if err != nil {
		return fmt.Errorf("load permission table: %w", err)
	}

	r.mu.Lock()
	r.snapshot = table
	r.version++
	version := r.version
	r.mu.Unlock()

	r.logger.Info("permission table loaded", "path", r.source.Path(), "roles", len(table.Rows), "version", version)
	return nil
}

func (r *Resolver) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// AllowedPackages returns the cumulative allowed set for a role: the union of
// explicit grants for every role at or below the role's level, sorted.
// Unknown roles get an empty set.
func (r *Resolver) AllowedPackages(role string) []string {
	level := RoleLevel(role)
	if level == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := map[string]string{}
	for _, row := range r.snapshot.Rows {
		if rowLevel := RoleLevel(row.Role); rowLevel == 0 || rowLevel > level {
			continue
		}
		for _, name := range row.Packages {
			allowed[strings.ToLower(name)] = name
		}
	}

	packages := make([]string, 0, len(allowed))
	for _, name := range allowed {
		packages = append(packages, name)
	}
	sort.Strings(packages)
	return packages
}

// IsAllowed reports whether a role may install the given package
// specification. The version qualifier is stripped and both the raw spec and
// the base name are matched case-insensitively.
func (r *Resolver) IsAllowed(role, packageSpec string) bool {
	packageSpec = strings.TrimSpace(packageSpec)
	if packageSpec == "" {
		return false
	}
	base := StripVersionQualifier(packageSpec)

	for _, name := range r.AllowedPackages(role) {
		if strings.EqualFold(name, packageSpec) || strings.EqualFold(name, base) {
			return true
		}
	}
	return false
}

// GrantPackage appends a package to a role's explicit set and persists the
// table. Granting a package the role already has is a no-op success.
func (r *Resolver) GrantPackage(role, packageName string) error {
	role = strings.TrimSpace(role)
	packageName = strings.TrimSpace(packageName)
	if packageName == "" {
		return fmt.Errorf("package name is required")
	}
	if !IsKnownRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Mutate a copy; the live snapshot is replaced only after the table is
	// persisted, so a failed write never changes what IsAllowed reports.
	rows := make([]TableRow, len(r.snapshot.Rows))
	copy(rows, r.snapshot.Rows)

	rowIndex := -1
	for index, row := range rows {
		if strings.EqualFold(row.Role, role) {
			rowIndex = index
			break
		}
	}
	if rowIndex == -1 {
		rows = append(rows, TableRow{Role: role})
		rowIndex = len(rows) - 1
	}

	for _, existing := range rows[rowIndex].Packages {
		if strings.EqualFold(existing, packageName) {
			return nil
		}
	}
	rows[rowIndex].Packages = append(append([]string(nil), rows[rowIndex].Packages...), packageName)

	updated := Table{Rows: rows}
	if err := r.source.Save(updated); err != nil {
		return fmt.Errorf("persist permission table: %w", err)
	}
	r.snapshot = updated
	r.version++
	r.logger.Info("package granted", "role", role, "package", packageName, "version", r.version)
	return nil
}

// RoleSummary describes one role's position in the hierarchy and its
// cumulative grant count.
type RoleSummary struct {
	Role     string
	Level    int
	Packages []string
}

// HierarchySummary returns every known role with its cumulative allowed set,
// ordered from lowest to highest level.
func (r *Resolver) HierarchySummary() []RoleSummary {
	summaries := make([]RoleSummary, 0, len(roleLevels))
	for _, role := range Roles() {
		summaries = append(summaries, RoleSummary{
			Role:     role,
			Level:    RoleLevel(role),
			Packages: r.AllowedPackages(role),
		})
	}
	return summaries
}

// StripVersionQualifier cuts a package specification at the first version
// operator character, returning the bare package name.
func StripVersionQualifier(packageSpec string) string {
	if index := strings.IndexAny(packageSpec, "=<>!"); index >= 0 {
		packageSpec = packageSpec[:index]
	}
	return strings.TrimSpace(packageSpec)
}
