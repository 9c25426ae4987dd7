package domain

import "time"

// EntryHistory is one audited change to a time entry field.
type EntryHistory struct {
	ID           int64     `json:"id"`
	EntryID      string    `json:"entry_id"`
	FieldName    string    `json:"field_name"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	ChangeReason string    `json:"change_reason,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

// DiffEntries returns one history record per field that differs between old
// and updated. The caller stamps ChangedAt and ChangeReason.
func DiffEntries(old, updated *TimeEntry) []*EntryHistory {
	var out []*EntryHistory
	add := func(field, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		out = append(out, &EntryHistory{
			EntryID:   updated.ID,
			FieldName: field,
			OldValue:  oldVal,
			NewValue:  newVal,
		})
	}

	add("project_id", old.ProjectID, updated.ProjectID)
	add("description", old.Description, updated.Description)
	add("start_time", formatInstant(&old.StartTime), formatInstant(&updated.StartTime))
	add("end_time", formatInstant(old.EndTime), formatInstant(updated.EndTime))
	add("is_billable", formatBool(old.IsBillable), formatBool(updated.IsBillable))
	return out
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
