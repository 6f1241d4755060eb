package output

import (
	"time"

	"github.com/jamesainslie/wintools/pkg/wintools/history"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// document is the shared shape of the json and yaml formats.
type document struct {
	Sessions []session `json:"sessions" yaml:"sessions"`
	Meta     meta      `json:"meta" yaml:"meta"`
}

type session struct {
	ID         string             `json:"id" yaml:"id"`
	ShortID    string             `json:"short_id" yaml:"short_id"`
	Kind       types.Kind         `json:"kind" yaml:"kind"`
	State      types.SessionState `json:"state" yaml:"state"`
	Trigger    string             `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	Elapsed    string             `json:"elapsed" yaml:"elapsed"`
	Summary    string             `json:"summary" yaml:"summary"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
	BytesFreed int64              `json:"bytes_freed" yaml:"bytes_freed"`
	FreedHuman string             `json:"freed_human" yaml:"freed_human"`
	Memory     *memory            `json:"memory,omitempty" yaml:"memory,omitempty"`
	Sweep      *sweep             `json:"sweep,omitempty" yaml:"sweep,omitempty"`
	Output     string             `json:"output,omitempty" yaml:"output,omitempty"`
}

type memory struct {
	BeforeAvailable  uint64            `json:"before_available" yaml:"before_available"`
	AfterAvailable   uint64            `json:"after_available" yaml:"after_available"`
	Total            uint64            `json:"total" yaml:"total"`
	Delta            int64             `json:"delta" yaml:"delta"`
	ProcessesTrimmed int               `json:"processes_trimmed" yaml:"processes_trimmed"`
	ProcessesSkipped int               `json:"processes_skipped" yaml:"processes_skipped"`
	StageErrors      map[string]string `json:"stage_errors,omitempty" yaml:"stage_errors,omitempty"`
}

type sweep struct {
	ItemsRemoved int            `json:"items_removed" yaml:"items_removed"`
	DirsRemoved  int            `json:"dirs_removed" yaml:"dirs_removed"`
	Skipped      map[string]int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Excluded     int            `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Cancelled    bool           `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

type meta struct {
	Source     string `json:"source" yaml:"source"`
	Count      int    `json:"count" yaml:"count"`
	Failed     int    `json:"failed" yaml:"failed"`
	BytesFreed int64  `json:"bytes_freed" yaml:"bytes_freed"`
	FreedHuman string `json:"freed_human" yaml:"freed_human"`
}

func buildDocument(r *Result) document {
	doc := document{
		Sessions: make([]session, len(r.Records)),
		Meta: meta{
			Source:     r.Source,
			Count:      len(r.Records),
			Failed:     r.Failed(),
			BytesFreed: r.BytesFreed(),
			FreedHuman: types.FormatSize(r.BytesFreed()),
		},
	}
	for i, rec := range r.Records {
		doc.Sessions[i] = buildSession(rec)
	}
	return doc
}

func buildSession(rec types.SessionRecord) session {
	s := session{
		ID:         rec.ID,
		ShortID:    history.ShortID(rec.ID),
		Kind:       rec.Kind,
		State:      rec.State,
		Trigger:    rec.Trigger,
		StartedAt:  rec.StartedAt,
		Elapsed:    rec.Elapsed.Round(time.Millisecond).String(),
		Summary:    rec.Summary,
		Error:      rec.Error,
		BytesFreed: rec.BytesFreed,
		FreedHuman: types.FormatSize(rec.BytesFreed),
		Output:     rec.Output,
	}
	if m := rec.Memory; m != nil {
		s.Memory = &memory{
			BeforeAvailable:  m.Before.Available,
			AfterAvailable:   m.After.Available,
			Total:            m.Before.Total,
			Delta:            m.Delta(),
			ProcessesTrimmed: m.ProcessesTrimmed,
			ProcessesSkipped: m.ProcessesSkipped,
		}
		if len(m.StageErrors) > 0 {
			s.Memory.StageErrors = make(map[string]string, len(m.StageErrors))
			for st, msg := range m.StageErrors {
				s.Memory.StageErrors[string(st)] = msg
			}
		}
	}
	if sw := rec.Sweep; sw != nil {
		s.Sweep = &sweep{
			ItemsRemoved: sw.ItemsRemoved,
			DirsRemoved:  sw.DirsRemoved,
			Excluded:     sw.Excluded,
			Cancelled:    sw.Cancelled,
		}
		if len(sw.Skipped) > 0 {
			s.Sweep.Skipped = make(map[string]int)
			for _, it := range sw.Skipped {
				s.Sweep.Skipped[string(it.Reason)]++
			}
		}
	}
	return s
}
