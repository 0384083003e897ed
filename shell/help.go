package shell

var usageText = `Commands:
  load <batchfile>       load a record batch (plain or compressed JSON)
  stats                  reward and game-length summary of the loaded batch
  hist [-bins N]         game-length histogram of the loaded batch
  show [idx]             print record idx, or the first few records
  summary                per-model aggregates from the archive (YAML)
  states [-within 30m]   recently reported thread checkpoints
  count                  total archived games
  script <file.lua>      run a lua script (tenuki_load, tenuki_stats, ...)
  help [topic]           this message
  exit                   leave the shell
`

var helpTopics = map[string]string{
	"load": `load <batchfile>

Loads a flushed batch file. Both the bare record-array form and the
full store form are accepted, compressed or not. The loaded batch is
what stats, hist, and show operate on.`,
	"script": `script <file.lua>

Runs a lua script with the shell exposed as tenuki_shell and the
commands as functions: tenuki_load(path), tenuki_stats(),
tenuki_hist(opts), tenuki_summary(), tenuki_count(). The http and
json modules are preloaded.`,
}

func usage(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 1 {
		if text, ok := helpTopics[cmd.args[0]]; ok {
			return msg(text), nil
		}
		return msg("There is no help text for the topic " + cmd.args[0]), nil
	}
	return msg(usageText), nil
}
