// Package shell is the interactive operator console: it loads record
// batches off disk, summarizes what the pipeline has produced, and
// queries the archive, with a lua hook for scripted inspection.
package shell

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/archive"
	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/sink"
)

var (
	errNoData            = errors.New("no data in this line")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
)

type shellcmd struct {
	cmd     string
	args    []string
	options map[string]string
}

// extractFields splits a command line into the command, its positional
// arguments, and -key value options. Quoting follows sh rules.
func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := map[string]string{}
	lastWasOption := false
	lastOption := ""
	for _, field := range fields[1:] {
		if strings.HasPrefix(field, "-") {
			lastWasOption = true
			lastOption = field[1:]
			continue
		}
		if lastWasOption {
			options[lastOption] = field
			lastWasOption = false
		} else {
			args = append(args, field)
		}
	}
	if lastWasOption {
		return nil, errWrongOptionSyntax
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

type Response struct {
	message string
}

func msg(message string) *Response {
	return &Response{message: message}
}

type ShellController struct {
	l   *readline.Instance
	cfg *config.Config

	arch *archive.Archive

	// The batch currently loaded with `load`.
	records []selfplay.Record
	source  string
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func writeln(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func (sc *ShellController) showMessage(msg string) {
	writeln(msg, sc.l.Stderr())
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

func NewShellController(cfg *config.Config) *ShellController {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mtenuki>\033[0m ",
		HistoryFile:     "/tmp/readline.tmp",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	return &ShellController{l: l, cfg: cfg}
}

// openArchive lazily opens the configured archive database.
func (sc *ShellController) openArchive() (*archive.Archive, error) {
	if sc.arch != nil {
		return sc.arch, nil
	}
	a, err := archive.Open(sc.cfg.ArchivePath)
	if err != nil {
		return nil, err
	}
	sc.arch = a
	return a, nil
}

func (sc *ShellController) load(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("load <batchfile>")
	}
	path := cmd.args[0]
	store, err := sink.ReadBatchFile(path)
	if err != nil {
		return nil, err
	}
	sc.records = store.Records()
	sc.source = path
	return msg(batchHeader(path, store)), nil
}

func (sc *ShellController) handle(line string) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	switch cmd.cmd {
	case "load", "l":
		return sc.load(cmd)
	case "stats", "st":
		return sc.stats(cmd)
	case "hist":
		return sc.hist(cmd)
	case "show", "s":
		return sc.show(cmd)
	case "summary":
		return sc.summary(cmd)
	case "states":
		return sc.states(cmd)
	case "count":
		return sc.count(cmd)
	case "script":
		return sc.script(cmd)
	case "help":
		return usage(cmd)
	default:
		return nil, errors.New("command " + cmd.cmd + " not found")
	}
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()
	defer func() {
		if sc.arch != nil {
			sc.arch.Close()
		}
	}()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "bye" {
			sig <- syscall.SIGINT
			break
		}
		resp, err := sc.handle(line)
		if err != nil {
			sc.showError(err)
		} else if resp != nil {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msgf("Exiting readline loop...")
}
