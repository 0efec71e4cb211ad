package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/messages"
	"github.com/louisbranch/storyloom/internal/services/play/notify"
	"github.com/louisbranch/storyloom/internal/services/play/protocol"
)

const helpText = `commands:
  /cancel            cancel the running turn
  /state             show the session state
  /map               show known locations
  /tools             show tool activity of the last turn
  /sessions          list sessions in this world
  /switch <id>       switch to another session
  /new               start a new session
  /quit              leave
  @<character> text  speak privately to one character
anything else is sent as a turn`

// Run reads player input line by line from in until it ends, ctx is
// cancelled, or the player quits. Turns run in the background so /cancel
// stays responsive; a new turn supersedes the running one. Run returns once
// every turn it started has ended, cancelling the live one unless the input
// simply ran out.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var turns sync.WaitGroup
	defer turns.Wait()

	a.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			a.guard.Cancel()
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			quit, err := a.dispatch(ctx, strings.TrimSpace(line), &turns)
			if err != nil {
				a.printf("! %v\n", err)
			}
			if quit {
				a.guard.Cancel()
				return nil
			}
		}
	}
}

func (a *App) dispatch(ctx context.Context, line string, turns *sync.WaitGroup) (bool, error) {
	if line == "" {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		a.printf("%s\n", helpText)
	case "/cancel":
		if !a.CancelTurn() {
			a.printf("no turn is running\n")
		}
	case "/state":
		a.printf("%s", FormatSnapshot(a.Snapshot()))
	case "/map":
		a.printf("%s", FormatMap(a.Map()))
	case "/tools":
		a.printf("%s", FormatLedger(a.Ledger()))
	case "/sessions":
		sessions, err := a.Sessions(ctx)
		if err != nil {
			a.notifier.Error(err)
			return false, nil
		}
		a.printf("%s", FormatSessions(sessions, a.Session()))
	case "/switch":
		if arg == "" {
			return false, errors.New("usage: /switch <session id>")
		}
		key := guard.SessionKey{WorldID: a.cfg.WorldID, SessionID: arg}
		if _, err := a.client.RecoverSession(ctx, key); err != nil {
			a.notifier.Error(err)
			return false, nil
		}
		if err := a.SwitchSession(ctx, key); err != nil {
			log.Printf("play: switch session: %v", err)
		}
	case "/new":
		if _, err := a.NewSession(ctx); err != nil {
			a.notifier.Error(err)
		}
	default:
		if strings.HasPrefix(cmd, "/") {
			return false, fmt.Errorf("unknown command %s", cmd)
		}
		input := parseInput(line)
		turns.Add(1)
		go func() {
			defer turns.Done()
			if _, err := a.SendTurn(ctx, input); err != nil {
				log.Printf("play: turn: %v", err)
			}
		}()
	}
	return false, nil
}

// parseInput turns a console line into a turn submission. "@id text"
// addresses one character privately.
func parseInput(line string) gateway.TurnInput {
	if target, text, ok := strings.Cut(line, " "); ok && strings.HasPrefix(target, "@") && len(target) > 1 {
		return gateway.TurnInput{
			Input:             strings.TrimSpace(text),
			InputType:         "dialogue",
			TargetCharacterID: strings.TrimPrefix(target, "@"),
			Private:           true,
		}
	}
	return gateway.TurnInput{Input: line}
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) renderMessage(m messages.Message) {
	if !m.IsFinalized || m.Role == messages.RolePlayer {
		return
	}
	if m.Role == messages.RoleCharacter {
		name := m.Name
		if name == "" {
			name = m.CharacterID
		}
		a.printf("%s: %s\n", name, m.Text)
		return
	}
	a.printf("%s\n", m.Text)
}

func (a *App) renderNotification(n notify.Notification) {
	switch n.Kind {
	case notify.KindError:
		a.printf("! %s\n", n.Text)
	default:
		a.printf("* %s\n", n.Text)
	}
}

func (a *App) renderRoll(r protocol.DiceResult) {
	a.printf("%s", FormatRoll(r))
}
