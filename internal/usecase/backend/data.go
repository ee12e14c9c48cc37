package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"ordito/internal/domain"
)

// ExportFilePrefix starts the name of every export file.
const ExportFilePrefix = "ordito-commands-"

// ExportData writes every group and schedule to a dated JSON file in the
// export directory and returns a message naming the file.
func (s *Service) ExportData(ctx context.Context) (string, error) {
	s.mu.Lock()
	data := domain.AppData{
		Groups:    make(map[string]domain.CommandGroup, len(s.groups)),
		Schedules: make(map[string]domain.Schedule, len(s.schedules)),
	}
	for _, g := range s.groups {
		data.Groups[g.ID] = g.Clone()
	}
	for _, sch := range s.schedules {
		data.Schedules[sch.ID] = sch.Clone()
	}
	now := s.now()
	s.mu.Unlock()

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", reject("export_data", fmt.Sprintf("Failed to serialize data: %v", err))
	}

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", reject("export_data", fmt.Sprintf("Failed to create export directory: %v", err))
	}
	path := filepath.Join(s.config.ExportDir, ExportFilePrefix+now.Format("2006-01-02")+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", reject("export_data", fmt.Sprintf("Failed to write export file: %v", err))
	}

	s.logger.Info("data exported", "path", path, "groups", len(data.Groups), "schedules", len(data.Schedules))
	return "Data exported to: " + path, nil
}

// ImportData merges an exported document into the current state. Groups
// and schedules whose IDs already exist are skipped. Imported active
// schedules start firing.
func (s *Service) ImportData(ctx context.Context, jsonText string) (string, error) {
	body := []byte(strings.TrimSpace(jsonText))
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", reject("import_data", fmt.Sprintf("Failed to parse import data: %v", err))
	}
	if err := checkAppDataShape(doc); err != nil {
		return "", reject("import_data", fmt.Sprintf("Failed to parse import data: %v", err))
	}
	var data domain.AppData
	if err := json.Unmarshal(body, &data); err != nil {
		return "", reject("import_data", fmt.Sprintf("Failed to parse import data: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added, skipped := 0, 0

	// Map order is random; sorted IDs keep repeated imports reproducible.
	for _, id := range slices.Sorted(maps.Keys(data.Groups)) {
		g := data.Groups[id]
		g.ID = id
		if g.Commands == nil {
			g.Commands = []domain.Command{}
		}
		if s.groupIndex(id) >= 0 {
			skipped++
			continue
		}
		if err := s.store.SaveGroup(ctx, g); err != nil {
			return "", s.storageError("import_data", err)
		}
		s.groups = append(s.groups, g)
		added++
	}

	for _, id := range slices.Sorted(maps.Keys(data.Schedules)) {
		sch := data.Schedules[id]
		sch.ID = id
		if s.scheduleIndex(id) >= 0 || sch.Target == nil {
			skipped++
			continue
		}
		if err := s.store.SaveSchedule(ctx, sch); err != nil {
			return "", s.storageError("import_data", err)
		}
		if sch.IsActive && !sch.Exhausted() {
			if err := s.register(sch); err != nil {
				s.logger.Warn("failed to schedule imported schedule", "schedule_id", id, "error", err)
			}
		}
		s.schedules = append(s.schedules, sch)
		added++
	}

	s.logger.Info("data imported", "added", added, "skipped", skipped)
	return fmt.Sprintf("Data imported successfully (%d added, %d skipped)", added, skipped), nil
}
