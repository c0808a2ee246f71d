// ABOUTME: Interval-based schema drift monitor with change classification
// ABOUTME: Alerts on unapproved changes and can auto-disable critically drifted tools

package drift

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389/warden-gateway/internal/config"
	"github.com/2389/warden-gateway/internal/security"
	"github.com/2389/warden-gateway/internal/tools"
)

// ChangeType classifies one schema difference.
type ChangeType string

const (
	ParameterAdded   ChangeType = "parameter_added"
	ParameterRemoved ChangeType = "parameter_removed"
	TypeChanged      ChangeType = "type_changed"
)

// Impact grades one change, and doubles as the report severity scale.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

var impactRank = map[Impact]int{
	ImpactLow:      0,
	ImpactMedium:   1,
	ImpactHigh:     2,
	ImpactCritical: 3,
}

// Change is one classified schema difference.
type Change struct {
	Type      ChangeType `json:"type"`
	Parameter string     `json:"parameter"`
	OldType   string     `json:"old_type,omitempty"`
	NewType   string     `json:"new_type,omitempty"`
	Impact    Impact     `json:"impact"`
}

// Key identifies a change for the approval allow-list.
func (c Change) Key() string {
	return string(c.Type) + ":" + c.Parameter
}

// Report aggregates the classified changes of one drifted tool.
type Report struct {
	ToolName   string    `json:"tool_name"`
	Changes    []Change  `json:"changes"`
	RiskScore  float64   `json:"risk_score"`
	ChangedPct float64   `json:"changed_pct"`
	Severity   Impact    `json:"severity"`
	Detected   time.Time `json:"detected"`
}

// approvalsFile is the on-disk TOML shape of the change allow-list.
type approvalsFile struct {
	Approvals []approvalEntry `toml:"approval"`
}

type approvalEntry struct {
	Tool   string `toml:"tool"`
	Change string `toml:"change"`
}

// ToolSource is the registry surface the monitor needs. ExtractAll must
// include disabled tools so an auto-disabled tool keeps its snapshot and
// is not reported as removed on the next pass.
type ToolSource interface {
	ExtractAll() []tools.Descriptor
	Disable(name string) bool
}

// Monitor periodically fingerprints every registered tool and compares
// against the last accepted snapshot. The first observation of a tool
// establishes its baseline.
type Monitor struct {
	cfg      config.DriftConfig
	source   ToolSource
	events   *security.EventLogger // optional
	logger   *slog.Logger
	approved map[string]map[string]struct{} // tool -> change key set

	mu        sync.Mutex
	snapshots map[string]Snapshot
	reports   []Report

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a drift monitor. The approvals file is loaded once
// at construction; a missing file means an empty allow-list.
func NewMonitor(cfg config.DriftConfig, source ToolSource, events *security.EventLogger, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:       cfg,
		source:    source,
		events:    events,
		logger:    logger.With("component", "drift"),
		approved:  make(map[string]map[string]struct{}),
		snapshots: make(map[string]Snapshot),
	}

	if cfg.ApprovalsPath != "" {
		if err := m.loadApprovals(cfg.ApprovalsPath); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Monitor) loadApprovals(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading approvals file: %w", err)
	}

	var file approvalsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing approvals file: %w", err)
	}
	for _, entry := range file.Approvals {
		set, ok := m.approved[entry.Tool]
		if !ok {
			set = make(map[string]struct{})
			m.approved[entry.Tool] = set
		}
		set[entry.Change] = struct{}{}
	}
	m.logger.Info("loaded drift approvals", "tools", len(m.approved))
	return nil
}

// Start launches the interval scan goroutine. No-op when disabled.
func (m *Monitor) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		return
	}
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.Scan() // establish baselines immediately
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Scan()
			}
		}
	}()
	m.logger.Info("drift monitor started", "interval", interval, "sensitivity", m.cfg.Sensitivity)
}

// Stop halts the scan goroutine and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Scan fingerprints every tool once and processes any drift. Returns
// the reports produced by this pass.
func (m *Monitor) Scan() []Report {
	descs := m.source.ExtractAll()
	seen := make(map[string]struct{}, len(descs))

	var produced []Report
	for _, desc := range descs {
		seen[desc.Name] = struct{}{}
		current := Fingerprint(desc)

		m.mu.Lock()
		previous, known := m.snapshots[desc.Name]
		m.mu.Unlock()

		if !known {
			m.mu.Lock()
			m.snapshots[desc.Name] = current
			m.mu.Unlock()
			m.logger.Debug("baseline snapshot stored", "tool_name", desc.Name, "hash", current.SchemaHash)
			continue
		}
		if previous.SchemaHash == current.SchemaHash {
			continue
		}

		report := m.classify(previous, current)
		m.mu.Lock()
		m.snapshots[desc.Name] = current
		m.mu.Unlock()

		if m.isApproved(report) {
			m.logger.Info("approved schema change accepted", "tool_name", desc.Name)
			continue
		}
		m.handleDrift(report)
		produced = append(produced, report)
	}

	m.mu.Lock()
	for name := range m.snapshots {
		if _, ok := seen[name]; !ok {
			delete(m.snapshots, name)
			m.logger.Warn("tool removed from registry", "tool_name", name)
			if m.events != nil {
				m.events.Record(security.Event{
					Type:     security.EventToolRemoved,
					Severity: security.SeverityMedium,
					Context:  map[string]string{"tool": name},
				})
			}
		}
	}
	m.mu.Unlock()

	return produced
}

// classify diffs two snapshots into a report.
func (m *Monitor) classify(old, current Snapshot) Report {
	report := Report{
		ToolName: current.ToolName,
		Detected: time.Now(),
		Severity: ImpactLow,
	}

	for name, prop := range current.properties {
		oldProp, existed := old.properties[name]
		if !existed {
			report.Changes = append(report.Changes, Change{
				Type:      ParameterAdded,
				Parameter: name,
				NewType:   prop.Type,
				Impact:    addedImpact(name, prop, current),
			})
			continue
		}
		if oldProp.Type != prop.Type {
			impact := ImpactMedium
			if matchesAny(name, systemAccessNames) || matchesAny(name, fileInputNames) {
				impact = ImpactHigh
			}
			report.Changes = append(report.Changes, Change{
				Type:      TypeChanged,
				Parameter: name,
				OldType:   oldProp.Type,
				NewType:   prop.Type,
				Impact:    impact,
			})
		}
	}
	for name, prop := range old.properties {
		if _, exists := current.properties[name]; !exists {
			impact := ImpactLow
			if prop.Required {
				impact = ImpactMedium
			}
			report.Changes = append(report.Changes, Change{
				Type:      ParameterRemoved,
				Parameter: name,
				OldType:   prop.Type,
				Impact:    impact,
			})
		}
	}

	span := max(len(old.properties), len(current.properties))
	if span > 0 {
		report.ChangedPct = float64(len(report.Changes)) / float64(span)
	}
	for _, change := range report.Changes {
		report.RiskScore += riskWeight(change.Impact)
		if impactRank[change.Impact] > impactRank[report.Severity] {
			report.Severity = change.Impact
		}
	}
	// Broad rewrites are suspicious even when each change looks benign
	if report.ChangedPct > 0.5 && report.Severity != ImpactCritical {
		report.Severity = bump(report.Severity)
	}
	return report
}

// addedImpact grades a newly appeared parameter. A new required
// parameter on a tool with system access is the classic rug-pull shape.
func addedImpact(name string, prop property, snap Snapshot) Impact {
	sensitive := matchesAny(name, systemAccessNames)
	switch {
	case prop.Required && (sensitive || snap.HasSystemAccess):
		return ImpactCritical
	case prop.Required:
		return ImpactHigh
	case sensitive || matchesAny(name, fileInputNames):
		return ImpactHigh
	default:
		return ImpactLow
	}
}

func riskWeight(impact Impact) float64 {
	switch impact {
	case ImpactCritical:
		return 1.0
	case ImpactHigh:
		return 0.6
	case ImpactMedium:
		return 0.3
	default:
		return 0.1
	}
}

func bump(impact Impact) Impact {
	switch impact {
	case ImpactLow:
		return ImpactMedium
	case ImpactMedium:
		return ImpactHigh
	default:
		return ImpactCritical
	}
}

// isApproved reports whether every change in the report is on the
// allow-list for its tool. A partially approved set still alerts.
func (m *Monitor) isApproved(report Report) bool {
	set, ok := m.approved[report.ToolName]
	if !ok || len(report.Changes) == 0 {
		return false
	}
	for _, change := range report.Changes {
		if _, approved := set[change.Key()]; !approved {
			return false
		}
	}
	return true
}

// alertThreshold maps the configured sensitivity to the minimum
// severity that raises an alert.
func (m *Monitor) alertThreshold() Impact {
	switch m.cfg.Sensitivity {
	case "strict":
		return ImpactLow
	case "loose":
		return ImpactHigh
	default: // moderate
		return ImpactMedium
	}
}

// handleDrift records, alerts, and optionally disables a drifted tool.
func (m *Monitor) handleDrift(report Report) {
	m.mu.Lock()
	m.reports = append(m.reports, report)
	m.mu.Unlock()

	if m.events != nil {
		m.events.Record(security.Event{
			Type:      security.EventSchemaChanged,
			Severity:  security.Severity(report.Severity),
			RiskScore: report.RiskScore,
			Context: map[string]string{
				"tool":    report.ToolName,
				"changes": fmt.Sprintf("%d", len(report.Changes)),
			},
		})
	}

	if impactRank[report.Severity] >= impactRank[m.alertThreshold()] {
		m.logger.Warn("schema drift detected",
			"tool_name", report.ToolName,
			"severity", string(report.Severity),
			"risk_score", report.RiskScore,
			"changed_pct", report.ChangedPct,
			"changes", len(report.Changes),
		)
	}

	if m.cfg.AutoDisable && report.Severity == ImpactCritical {
		if m.source.Disable(report.ToolName) {
			m.logger.Error("auto-disabled tool after critical drift", "tool_name", report.ToolName)
		}
	}
}

// Reports returns all drift reports accumulated so far.
func (m *Monitor) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Report, len(m.reports))
	copy(out, m.reports)
	return out
}
