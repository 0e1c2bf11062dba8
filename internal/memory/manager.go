// Package memory implements the four-tier investigation memory: hot
// iterations kept verbatim, warm LLM summaries, cold fact reductions, and
// permanent insights. The manager is the only writer of tier contents.
package memory

import (
	"context"
	"fmt"
	"strings"

	"triage/internal/config"
	"triage/internal/llm"
	"triage/internal/logging"
	"triage/internal/types"
)

// Manager owns the memory tiers of investigations. Compression demotes
// content down the tiers; a failed summarization leaves content at its
// current tier and retries on the next cycle.
type Manager struct {
	client  llm.Client
	cfg     config.MemoryConfig
	counter *TokenCounter
}

// NewManager creates a memory manager over the given completion client.
func NewManager(client llm.Client, cfg config.MemoryConfig) *Manager {
	return &Manager{
		client:  client,
		cfg:     cfg,
		counter: NewTokenCounter(cfg.TokenizerEncoding),
	}
}

// RecordIteration appends an iteration to hot memory and demotes any
// overflow beyond the hot window. A summarization failure keeps the
// overflowing iteration in hot rather than losing it.
func (m *Manager) RecordIteration(ctx context.Context, st *types.InvestigationState, rec types.IterationRecord) {
	st.Memory.Hot = append(st.Memory.Hot, rec)
	if err := m.demoteHotOverflow(ctx, st); err != nil {
		logging.Memory().Warnw("hot demotion failed, retaining tier",
			"case_id", st.CaseID, "error", err)
	}
}

// MaybeCompress runs a compression cycle when one is due: every N turns,
// or immediately when the assembled context exceeds the budget. With
// deferred compaction enabled it only flags the case; the scheduled task
// calls Compress under the same per-case lease.
func (m *Manager) MaybeCompress(ctx context.Context, st *types.InvestigationState, turn int) (bool, error) {
	due := turn-st.Memory.LastCompressedTurn >= m.cfg.CompressEveryNTurns ||
		m.ContextTokens(st) > m.cfg.TokenBudget
	if !due {
		return false, nil
	}

	if m.cfg.DeferCompaction {
		if !st.Memory.PendingCompression {
			st.Memory.PendingCompression = true
			logging.Memory().Debugw("compression deferred", "case_id", st.CaseID, "turn", turn)
		}
		return false, nil
	}

	return true, m.Compress(ctx, st, turn)
}

// Compress runs the full demotion pipeline and enforces the token budget.
func (m *Manager) Compress(ctx context.Context, st *types.InvestigationState, turn int) error {
	err := m.demoteHotOverflow(ctx, st)
	m.demoteWarmOverflow(st)
	m.enforceBudget(st)

	st.Memory.PendingCompression = false
	if err != nil {
		// Retry the failed demotion next cycle; nothing was dropped.
		return fmt.Errorf("compression incomplete: %w", err)
	}
	st.Memory.LastCompressedTurn = turn

	logging.Memory().Debugw("compressed memory",
		"case_id", st.CaseID,
		"turn", turn,
		"hot", len(st.Memory.Hot),
		"warm", len(st.Memory.Warm),
		"cold", len(st.Memory.Cold),
		"tokens", m.ContextTokens(st))
	return nil
}

// demoteHotOverflow summarizes iterations aging out of the hot window
// into warm snapshots.
func (m *Manager) demoteHotOverflow(ctx context.Context, st *types.InvestigationState) error {
	for len(st.Memory.Hot) > m.cfg.HotIterations {
		oldest := st.Memory.Hot[0]

		summary, err := m.summarize(ctx, oldest)
		if err != nil {
			return err
		}

		st.Memory.Warm = append(st.Memory.Warm, types.WarmSnapshot{
			StartTurn: oldest.TurnNumber,
			EndTurn:   oldest.TurnNumber,
			Summary:   summary,
			Tokens:    m.counter.Count(summary),
		})
		st.Memory.Hot = st.Memory.Hot[1:]
	}
	return nil
}

func (m *Manager) summarize(ctx context.Context, rec types.IterationRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Investigation iteration, turn %d, phase %s.\n", rec.TurnNumber, rec.Phase)
	fmt.Fprintf(&b, "User: %s\n", rec.UserInput)
	fmt.Fprintf(&b, "Agent: %s\n", rec.AgentReply)
	for _, f := range rec.Findings {
		fmt.Fprintf(&b, "Finding: %s\n", f)
	}

	prompt := fmt.Sprintf(
		"Summarize this investigation iteration in at most %d tokens. Keep concrete facts: symptoms, evidence outcomes, hypothesis changes, decisions. Respond with the summary only.\n\n%s",
		m.cfg.WarmTargetTokens, b.String())

	summary, err := m.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize turn %d: %w", rec.TurnNumber, err)
	}
	return strings.TrimSpace(summary), nil
}

// demoteWarmOverflow reduces warm snapshots aging past the warm window to
// cold fact lists via a fixed template. No LLM call; the reduction is
// deterministic. Warm covers the history positions between the hot window
// and WarmPositions, so its capacity is the difference.
func (m *Manager) demoteWarmOverflow(st *types.InvestigationState) {
	capacity := m.cfg.WarmPositions - m.cfg.HotIterations
	if capacity < 1 {
		capacity = 1
	}
	for len(st.Memory.Warm) > capacity {
		oldest := st.Memory.Warm[0]

		facts := extractFacts(oldest.Summary)
		facts = m.capFacts(facts, m.cfg.ColdTargetTokens)

		st.Memory.Cold = append(st.Memory.Cold, types.ColdSnapshot{
			StartTurn: oldest.StartTurn,
			EndTurn:   oldest.EndTurn,
			Facts:     facts,
			Tokens:    m.counter.CountAll(facts),
		})
		st.Memory.Warm = st.Memory.Warm[1:]
	}
}

// extractFacts pulls fact-bearing sentences from a warm summary. Lines
// naming causes, confidence, or evidence status come first.
func extractFacts(summary string) []string {
	var priority, rest []string
	for _, raw := range splitSentences(summary) {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		if strings.Contains(lower, "cause") ||
			strings.Contains(lower, "confidence") ||
			strings.Contains(lower, "likelihood") ||
			strings.Contains(lower, "blocked") ||
			strings.Contains(lower, "complete") ||
			strings.Contains(lower, "ruled out") {
			priority = append(priority, s)
		} else {
			rest = append(rest, s)
		}
	}
	return append(priority, rest...)
}

func splitSentences(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '\n' || r == ';'
	})
}

func (m *Manager) capFacts(facts []string, target int) []string {
	total := 0
	for i, f := range facts {
		total += m.counter.Count(f)
		if total > target {
			return facts[:i]
		}
	}
	return facts
}

// AddPersistentInsight records a permanent insight (root cause, solution,
// critical learning). Persistent entries are never demoted or dropped.
func (m *Manager) AddPersistentInsight(st *types.InvestigationState, kind, text string, turn int) {
	for _, p := range st.Memory.Persistent {
		if p.Kind == kind && p.Text == text {
			return
		}
	}
	st.Memory.Persistent = append(st.Memory.Persistent, types.PersistentInsight{
		Kind:       kind,
		Text:       text,
		TurnNumber: turn,
	})
	logging.Memory().Infow("recorded persistent insight",
		"case_id", st.CaseID, "kind", kind, "turn", turn)
}

// enforceBudget drops the oldest cold, then warm, entries until the
// assembled context fits the budget. Hot and persistent content is never
// dropped here.
func (m *Manager) enforceBudget(st *types.InvestigationState) {
	for m.ContextTokens(st) > m.cfg.TokenBudget && len(st.Memory.Cold) > 0 {
		st.Memory.Cold = st.Memory.Cold[1:]
	}
	for m.ContextTokens(st) > m.cfg.TokenBudget && len(st.Memory.Warm) > 1 {
		st.Memory.Warm = st.Memory.Warm[1:]
	}
}

// Context assembles the prompt context in priority order: persistent,
// hot, warm, cold. Lower-priority tiers are skipped once the budget is
// spent. The minimal tier carries only persistent insights plus the most
// recent hot iteration.
func (m *Manager) Context(st *types.InvestigationState) string {
	minimal := st.PromptTier == types.PromptTierMinimal

	var sections []string
	budget := m.cfg.TokenBudget
	spent := 0

	add := func(s string) bool {
		// Two extra tokens cover the section separator.
		n := m.counter.Count(s) + 2
		if spent+n > budget && len(sections) > 0 {
			return false
		}
		sections = append(sections, s)
		spent += n
		return true
	}

	if block := persistentBlock(st); block != "" {
		add(block)
	}

	hot := st.Memory.Hot
	if minimal && len(hot) > 1 {
		hot = hot[len(hot)-1:]
	}
	for i := len(hot) - 1; i >= 0; i-- {
		rec := hot[i]
		var b strings.Builder
		fmt.Fprintf(&b, "[turn %d, %s]\nUser: %s\nAgent: %s", rec.TurnNumber, rec.Phase, rec.UserInput, rec.AgentReply)
		for _, f := range rec.Findings {
			fmt.Fprintf(&b, "\nFinding: %s", f)
		}
		if !add(b.String()) {
			break
		}
	}

	if !minimal {
		for i := len(st.Memory.Warm) - 1; i >= 0; i-- {
			w := st.Memory.Warm[i]
			if !add(fmt.Sprintf("[summary turns %d-%d] %s", w.StartTurn, w.EndTurn, w.Summary)) {
				break
			}
		}
		for i := len(st.Memory.Cold) - 1; i >= 0; i-- {
			c := st.Memory.Cold[i]
			if !add(fmt.Sprintf("[facts turns %d-%d] %s", c.StartTurn, c.EndTurn, strings.Join(c.Facts, "; "))) {
				break
			}
		}
	}

	// Newest-first accumulation, oldest-first presentation.
	for i, j := 0, len(sections)-1; i < j; i, j = i+1, j-1 {
		sections[i], sections[j] = sections[j], sections[i]
	}
	return strings.Join(sections, "\n\n")
}

// TokenBudget reports the configured assembly budget.
func (m *Manager) TokenBudget() int {
	return m.cfg.TokenBudget
}

// ContextTokens estimates the assembled context size without truncation.
func (m *Manager) ContextTokens(st *types.InvestigationState) int {
	total := m.counter.Count(persistentBlock(st))
	for _, rec := range st.Memory.Hot {
		total += m.counter.Count(rec.UserInput) + m.counter.Count(rec.AgentReply)
		total += m.counter.CountAll(rec.Findings)
	}
	for _, w := range st.Memory.Warm {
		total += m.counter.Count(w.Summary)
	}
	for _, c := range st.Memory.Cold {
		total += m.counter.CountAll(c.Facts)
	}
	return total
}

func persistentBlock(st *types.InvestigationState) string {
	if len(st.Memory.Persistent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Established findings:")
	for _, p := range st.Memory.Persistent {
		fmt.Fprintf(&b, "\n- [%s] %s", p.Kind, p.Text)
	}
	return b.String()
}
