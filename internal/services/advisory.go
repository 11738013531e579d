// Package services – advisory engine
//
// The advisory engine is an external, untrusted oracle: it receives a
// read-only snapshot of the sender's open items (plus optional free time
// blocks) and returns plain suggestion text. It has no mutation path and no
// way to submit a command; anything it suggests re-enters the webhook as
// ordinary sender text, subject to the full pipeline.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-task-assistant/internal/command"
	"github.com/tbourn/go-task-assistant/internal/domain"
	"github.com/tbourn/go-task-assistant/internal/repo"
)

// SnapshotItem is one open task as seen by the advisor.
type SnapshotItem struct {
	ListID int64  `json:"list_id"`
	ItemID int64  `json:"item_id"`
	List   string `json:"list"`
	Text   string `json:"text"`
}

// Snapshot is the read-only state handed to the advisor. It carries only
// what a suggestion needs; in particular no delivery IDs and no audit data.
type Snapshot struct {
	Sender     string         `json:"sender"`
	OpenItems  []SnapshotItem `json:"open_items"`
	FreeBlocks []string       `json:"free_blocks,omitempty"`
}

// SnapshotFor collects the sender's open items across all their lists.
func SnapshotFor(ctx context.Context, db *gorm.DB, sender string) (*Snapshot, error) {
	lists, err := repo.ListLists(ctx, db, sender)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Sender: sender}
	for _, l := range lists {
		items, err := repo.ListOpenItems(ctx, db, l.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			snap.OpenItems = append(snap.OpenItems, SnapshotItem{
				ListID: l.ID,
				ItemID: it.ItemID,
				List:   l.Name,
				Text:   it.Text,
			})
		}
	}
	return snap, nil
}

// Advisor produces suggestion text from a snapshot. Implementations must be
// side-effect free with respect to application state.
type Advisor interface {
	Suggest(ctx context.Context, snap *Snapshot) (string, error)
}

// ErrAdvisoryDisabled is returned when /suggest arrives but no advisor is
// configured.
var ErrAdvisoryDisabled = errors.New("advisory engine not configured")

// OllamaAdvisor calls a local Ollama instance's /api/generate endpoint.
type OllamaAdvisor struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewOllamaAdvisor constructs an advisor with a bounded-timeout HTTP client.
func NewOllamaAdvisor(baseURL, model string, timeout time.Duration) *OllamaAdvisor {
	return &OllamaAdvisor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Suggest builds a prompt constrained to the snapshot's real item IDs and
// returns the model's text.
func (a *OllamaAdvisor) Suggest(ctx context.Context, snap *Snapshot) (string, error) {
	tr := otel.Tracer("services/OllamaAdvisor")
	ctx, span := tr.Start(ctx, "Suggest",
		trace.WithAttributes(attribute.Int("open_items", len(snap.OpenItems))),
	)
	defer span.End()

	body, err := json.Marshal(generateRequest{
		Model:  a.Model,
		Prompt: buildSuggestPrompt(snap),
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3,
			"num_predict": 220,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("suggestion engine returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "Suggestion engine returned empty output.", nil
	}
	return text, nil
}

// buildSuggestPrompt constrains the model to the real open items so it
// cannot invent task or list IDs.
func buildSuggestPrompt(snap *Snapshot) string {
	var tasks strings.Builder
	for _, it := range snap.OpenItems {
		fmt.Fprintf(&tasks, "- %d: %s (list %s)\n", it.ItemID, it.Text, it.List)
	}
	taskLines := strings.TrimRight(tasks.String(), "\n")
	if taskLines == "" {
		taskLines = "(none)"
	}

	freeSection := ""
	if len(snap.FreeBlocks) > 0 {
		freeSection = "FREE TIME BLOCKS:\n" + strings.Join(snap.FreeBlocks, "\n") + "\n\n"
	}

	return "You are an advisory task assistant.\n\n" +
		"RULES (you must follow ALL of these):\n" +
		"1) You MUST ONLY reference task IDs that appear in the task list below.\n" +
		"2) Never invent task IDs, list IDs, names, or example values.\n" +
		"3) Do NOT use placeholders such as '...', 'TBD', or 'etc.'.\n" +
		"4) Be concise and concrete.\n" +
		"5) In the Reminder section, you must print the command list EXACTLY as provided.\n" +
		"6) Each schedule line must explicitly mention the task ID(s) it addresses.\n" +
		"7) If there are fewer than 3 tasks, list only the available ones.\n\n" +
		"TASK LIST (only these IDs are valid):\n" +
		taskLines + "\n\n" +
		freeSection +
		"OUTPUT FORMAT (use exactly this structure):\n\n" +
		"Top priorities:\n" +
		"- <id>: <one short reason>\n\n" +
		"Suggested schedule:\n" +
		"- <time block>: <specific plan mentioning task ID(s)>\n\n" +
		"Reminder (print exactly these commands, no examples, no extra text):\n" +
		command.HelpText
}

// auditSuggest is the metadata recorded with a /suggest COMMAND_EXECUTED
// event. Suggestion text itself is not persisted; the advisor is outside
// the trust boundary and its output is treated as transient.
func auditSuggest(snap *Snapshot) map[string]any {
	return map[string]any{
		"cmd":        "/suggest",
		"open_items": len(snap.OpenItems),
	}
}

// RunSuggest produces the reply for /suggest: snapshot, advisor call, and a
// COMMAND_EXECUTED audit event. freeBlocks optionally carries pre-formatted
// availability lines for the prompt. The audit write is independent of the
// advisor call because no state mutates either way.
func RunSuggest(ctx context.Context, db *gorm.DB, advisor Advisor, sender string, freeBlocks []string) (string, error) {
	if advisor == nil {
		return "", ErrAdvisoryDisabled
	}
	snap, err := SnapshotFor(ctx, db, sender)
	if err != nil {
		return "", err
	}
	snap.FreeBlocks = freeBlocks
	text, err := advisor.Suggest(ctx, snap)
	if err != nil {
		return "", err
	}
	if _, err := repo.AppendAudit(db.WithContext(ctx), sender, domain.EventCommandExecuted, auditSuggest(snap)); err != nil {
		return "", err
	}
	return text, nil
}
