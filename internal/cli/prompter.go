package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/at-ishikawa/ieltsnotes/internal/recovery"
)

// ConsolePrompter asks on the console how to free flat store space.
type ConsolePrompter struct {
	*InteractiveCLI
}

func NewConsolePrompter(cli *InteractiveCLI) *ConsolePrompter {
	return &ConsolePrompter{InteractiveCLI: cli}
}

var recoveryChoices = map[string]recovery.Action{
	"1": recovery.StripAudio,
	"2": recovery.PruneOld,
	"3": recovery.Cancel,
}

// ChooseRecovery keeps asking until a valid choice is typed.
// A closed input counts as a cancel.
func (p *ConsolePrompter) ChooseRecovery(ctx context.Context, info recovery.Info) (recovery.Action, error) {
	w := p.stdoutWriter
	_, _ = p.red.Fprintf(w, "Storage is full, %s could not be saved.\n", info.Key)
	_, _ = fmt.Fprintf(w, "Using %s of %s (%.1f%%)\n", formatBytes(info.Usage.UsedBytes), formatBytes(info.Usage.QuotaBytes), info.Usage.Percent)
	_, _ = fmt.Fprintf(w, "  1) strip audio: move audio of %d notes to the audio database\n", info.InlineAudio)
	_, _ = fmt.Fprintf(w, "  2) prune old notes: delete %d notes older than %d days\n", info.Prunable, int(info.PruneAge.Hours()/24))
	_, _ = fmt.Fprintln(w, "  3) cancel")

	for {
		if err := ctx.Err(); err != nil {
			return recovery.Cancel, err
		}
		_, _ = p.bold.Fprint(w, "Choose [1-3]: ")
		answer, err := p.readLine()
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(w)
			return recovery.Cancel, nil
		}
		if err != nil {
			return recovery.Cancel, fmt.Errorf("readLine() > %w", err)
		}
		if action, ok := recoveryChoices[answer]; ok {
			return action, nil
		}
		_, _ = fmt.Fprintf(w, "%q is not a choice\n", answer)
	}
}

// ConsoleNotifier prints errors the user has to act on.
type ConsoleNotifier struct {
	*InteractiveCLI
}

func NewConsoleNotifier(cli *InteractiveCLI) *ConsoleNotifier {
	return &ConsoleNotifier{InteractiveCLI: cli}
}

func (n *ConsoleNotifier) NotifyError(_ context.Context, err error) {
	_, _ = n.red.Fprintf(n.stdoutWriter, "Error: %v\n", err)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
