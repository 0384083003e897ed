package shell

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cjoudrey/gluahttp"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

func getShell(L *lua.LState) *ShellController {
	shell := L.GetGlobal("tenuki_shell")
	ud, ok := shell.(*lua.LUserData)
	if !ok {
		panic("luserdata not right type")
	}
	sc, ok := ud.Value.(*ShellController)
	if !ok {
		panic("shellcontroller not right type")
	}
	return sc
}

func Load(L *lua.LState) int {
	lv := L.ToString(1)
	sc := getShell(L)
	r, err := sc.load(&shellcmd{
		cmd:  "load",
		args: strings.Split(lv, " "),
	})
	if err != nil {
		log.Err(err).Msg("error-executing-load")
		L.Push(lua.LString("ERROR: " + err.Error()))
		return 1
	}
	L.Push(lua.LString(r.message))
	// return number of results pushed to stack.
	return 1
}

func Stats(L *lua.LState) int {
	sc := getShell(L)
	r, err := sc.stats(&shellcmd{cmd: "stats"})
	if err != nil {
		log.Err(err).Msg("error-executing-stats")
		L.Push(lua.LString("ERROR: " + err.Error()))
		return 1
	}
	L.Push(lua.LString(r.message))
	return 1
}

func Hist(L *lua.LState) int {
	lv := L.ToString(1)
	sc := getShell(L)
	cmd, err := extractFields("hist " + lv)
	if err != nil {
		log.Err(err).Msg("error-parsing-hist")
		return 0
	}
	r, err := sc.hist(cmd)
	if err != nil {
		log.Err(err).Msg("error-executing-hist")
		return 0
	}
	L.Push(lua.LString(r.message))
	return 1
}

func Summary(L *lua.LState) int {
	sc := getShell(L)
	r, err := sc.summary(&shellcmd{cmd: "summary"})
	if err != nil {
		log.Err(err).Msg("error-executing-summary")
		return 0
	}
	L.Push(lua.LString(r.message))
	return 1
}

func Count(L *lua.LState) int {
	sc := getShell(L)
	r, err := sc.count(&shellcmd{cmd: "count"})
	if err != nil {
		log.Err(err).Msg("error-executing-count")
		return 0
	}
	L.Push(lua.LString(r.message))
	return 1
}

func (sc *ShellController) script(cmd *shellcmd) (*Response, error) {
	if cmd.args == nil {
		return nil, errors.New("need arguments for script")
	}

	filepath := cmd.args[0]

	L := lua.NewState()
	defer L.Close()

	L.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{}).Loader)
	luajson.Preload(L)

	lsc := L.NewUserData()
	lsc.Value = sc

	L.SetGlobal("tenuki_shell", lsc)
	L.SetGlobal("tenuki_load", L.NewFunction(Load))
	L.SetGlobal("tenuki_stats", L.NewFunction(Stats))
	L.SetGlobal("tenuki_hist", L.NewFunction(Hist))
	L.SetGlobal("tenuki_summary", L.NewFunction(Summary))
	L.SetGlobal("tenuki_count", L.NewFunction(Count))

	if err := L.DoFile(filepath); err != nil {
		log.Err(err).Msg("there was a error")
		return nil, err
	}
	return nil, nil
}
