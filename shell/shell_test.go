package shell

import (
	"testing"

	"github.com/matryer/is"
)

func TestExtractFields(t *testing.T) {
	is := is.New(t)
	type testdata struct {
		line   string
		expCmd *shellcmd
		expErr error
	}
	cases := []testdata{
		{"", nil, errNoData},
		{"hist -bins 25",
			&shellcmd{"hist", nil, map[string]string{"bins": "25"}},
			nil},
		{"load /data/batch-0007.json.zst",
			&shellcmd{"load", []string{"/data/batch-0007.json.zst"}, map[string]string{}},
			nil},
		{"states recent -within 30m ",
			&shellcmd{"states",
				[]string{"recent"},
				map[string]string{"within": "30m"}},
			nil,
		},
		{"states recent -within",
			nil, errWrongOptionSyntax},
		{`load "/data/with space/batch.json"`,
			&shellcmd{"load", []string{"/data/with space/batch.json"}, map[string]string{}},
			nil},
	}
	for _, tc := range cases {
		cmd, err := extractFields(tc.line)
		is.Equal(cmd, tc.expCmd)
		is.Equal(err, tc.expErr)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	is := is.New(t)
	sc := &ShellController{}
	_, err := sc.handle("frobnicate")
	is.True(err != nil)
}

func TestStatsWithoutBatch(t *testing.T) {
	is := is.New(t)
	sc := &ShellController{}
	_, err := sc.stats(&shellcmd{cmd: "stats"})
	is.True(err != nil)
}

func TestUsageTopics(t *testing.T) {
	is := is.New(t)
	r, err := usage(&shellcmd{cmd: "help"})
	is.NoErr(err)
	is.True(len(r.message) > 0)

	r, err = usage(&shellcmd{cmd: "help", args: []string{"load"}})
	is.NoErr(err)
	is.True(len(r.message) > 0)
}
