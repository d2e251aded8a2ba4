package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

var engines = []string{engineSQLite, engineBadger}

func dbPath(t *testing.T, engine string) string {
	t.Helper()
	if engine == engineSQLite {
		return filepath.Join(t.TempDir(), "tags.db")
	}
	return filepath.Join(t.TempDir(), "tags")
}

// run executes one CLI invocation and returns what it wrote to stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"tagstore"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	require.NoError(t, err, "tagstore %s", strings.Join(args, " "))
	return out
}

func lines(out string) []string {
	return strings.Split(strings.TrimSpace(out), "\n")
}

const fruit = `{"name":"apple","color":"red","weight":3}
{"name":"cherry","color":"red","weight":1}
{"name":"grape","color":"green","weight":2}
`

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	find := func(name string) cli.Flag {
		for _, flag := range app.Flags {
			for _, n := range flag.Names() {
				if n == name {
					return flag
				}
			}
		}
		return nil
	}

	t.Run("db is required and reads TAGSTORE_DB", func(t *testing.T) {
		f, ok := find("db").(*cli.StringFlag)
		require.True(t, ok)
		assert.True(t, f.Required)
		assert.Equal(t, []string{"TAGSTORE_DB"}, f.EnvVars)
	})

	t.Run("engine defaults to sqlite", func(t *testing.T) {
		f, ok := find("engine").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, engineSQLite, f.Value)
		assert.Equal(t, []string{"TAGSTORE_ENGINE"}, f.EnvVars)
	})

	t.Run("field flags are repeatable", func(t *testing.T) {
		_, ok := find("tag-field").(*cli.StringSliceFlag)
		assert.True(t, ok)
		_, ok = find("metric-field").(*cli.StringSliceFlag)
		assert.True(t, ok)
	})
}

func TestInvalidFlags(t *testing.T) {
	db := dbPath(t, engineSQLite)

	_, err := run(t, "", "--db", db, "--log-level", "loud", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = run(t, "", "--db", db, "--engine", "bolt", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")

	_, err = run(t, "", "--db", db, "--journal-mode", "MEMORY", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal mode")

	_, err = run(t, "", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestPutAndGet(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			db := dbPath(t, engine)
			global := []string{"--db", db, "--engine", engine, "-t", "color", "-m", "weight"}

			out := mustRun(t, "", append(global, "put", "--key", "fruit-1",
				"--created", "2024-01-02T03:04:05Z", `{"color":"red","weight":3}`)...)
			assert.Equal(t, "fruit-1\n", out)

			out = mustRun(t, "", append(global, "get", "--metadata", "fruit-1")...)
			var view entryView
			require.NoError(t, json.Unmarshal([]byte(out), &view))
			assert.Equal(t, "fruit-1", view.Key)
			assert.Equal(t, "red", view.Data["color"])
			assert.Equal(t, 2024, view.CreatedAt.Year())
			assert.Equal(t, []string{"color:red"}, view.Tags)
			assert.Equal(t, 3.0, view.Metrics["weight"])
			assert.Contains(t, view.Metrics, "createdAt")

			out = mustRun(t, `{"color":"blue"}`, append(global, "put")...)
			generated := strings.TrimSpace(out)
			assert.Len(t, generated, 26)

			_, err := run(t, "", append(global, "get", "missing-key")...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not found")
		})
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	db := dbPath(t, engineSQLite)

	_, err := run(t, "", "--db", db, "put", "not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON document")

	_, err = run(t, "", "--db", db, "put", "--key", "abc", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid entry key")
}

func TestImportQueryCount(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			db := dbPath(t, engine)
			global := []string{"--db", db, "--engine", engine, "-t", "color", "-m", "weight"}

			out := mustRun(t, fruit, append(global, "import", "--key-field", "name")...)
			assert.Equal(t, "Imported 3 documents (3 new, 3 changed)\n", out)

			out = mustRun(t, "", append(global, "query", "--tag", "color:red", "--order-by", "weight", "--keys-only")...)
			assert.Equal(t, []string{"cherry", "apple"}, lines(out))

			out = mustRun(t, "", append(global, "query", "--order-by", "weight", "--desc", "--limit", "2", "--keys-only")...)
			assert.Equal(t, []string{"apple", "grape"}, lines(out))

			out = mustRun(t, "", append(global, "query", "--tag", "color:green")...)
			var view entryView
			require.NoError(t, json.Unmarshal([]byte(out), &view))
			assert.Equal(t, "grape", view.Key)

			out = mustRun(t, "", append(global, "query", "--tag", "color:purple", "--keys-only")...)
			assert.Empty(t, strings.TrimSpace(out))

			assert.Equal(t, "2\n", mustRun(t, "", append(global, "count", "--tag", "color:red")...))
			assert.Equal(t, "3\n", mustRun(t, "", append(global, "count")...))
		})
	}
}

func TestImportRollsBackOnFailure(t *testing.T) {
	db := dbPath(t, engineSQLite)
	input := `{"name":"apple","color":"red"}
{"name":"fig","color":"purple"}
`
	_, err := run(t, input, "--db", db, "-t", "color", "import", "--key-field", "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 2")

	assert.Equal(t, "0\n", mustRun(t, "", "--db", db, "count"))
}

func TestTagsAndMetrics(t *testing.T) {
	db := dbPath(t, engineSQLite)
	global := []string{"--db", db, "-t", "color", "-m", "weight"}
	mustRun(t, fruit, append(global, "import", "--key-field", "name")...)

	assert.Equal(t, "color\n", mustRun(t, "", append(global, "tags")...))

	out := mustRun(t, "", append(global, "tags", "--prefix", "COLOR")...)
	assert.Contains(t, out, "color:red\t2\n")
	assert.Contains(t, out, "color:green\t1\n")

	assert.Empty(t, mustRun(t, "", append(global, "tags", "--prefix", "shape")...))

	out = mustRun(t, "", append(global, "metrics")...)
	assert.Equal(t, []string{"createdAt", "updatedAt", "weight"}, lines(out))
}

func TestDelete(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			db := dbPath(t, engine)
			global := []string{"--db", db, "--engine", engine, "-t", "color"}
			mustRun(t, fruit, append(global, "import", "--key-field", "name")...)

			out := mustRun(t, "", append(global, "delete", "apple", "grape")...)
			assert.Equal(t, "Deleted 2 entries\n", out)

			assert.Equal(t, "1\n", mustRun(t, "", append(global, "count", "--tag", "color:red")...))
			assert.Equal(t, "0\n", mustRun(t, "", append(global, "count", "--tag", "color:green")...))

			_, err := run(t, "", append(global, "delete")...)
			assert.Error(t, err)
		})
	}
}

func TestReindexAppliesNewFields(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			db := dbPath(t, engine)
			mustRun(t, fruit, "--db", db, "--engine", engine, "-t", "color", "import", "--key-field", "name")

			out := mustRun(t, "", "--db", db, "--engine", engine, "-t", "name", "-m", "weight",
				"reindex", "--batch-size", "2", "--report-interval", "1")
			assert.Equal(t, "Reindexed 3 entries in 2 batches\n", out)

			assert.Equal(t, "0\n", mustRun(t, "", "--db", db, "--engine", engine, "count", "--tag", "color:red"))
			assert.Equal(t, "1\n", mustRun(t, "", "--db", db, "--engine", engine, "count", "--tag", "name:grape"))

			out = mustRun(t, "", "--db", db, "--engine", engine, "query", "--order-by", "weight", "--keys-only")
			assert.Equal(t, []string{"cherry", "grape", "apple"}, lines(out))
		})
	}
}

func TestReindexValidatesFlags(t *testing.T) {
	db := dbPath(t, engineSQLite)
	_, err := run(t, "", "--db", db, "reindex", "--batch-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch-size")
}

func TestStats(t *testing.T) {
	db := dbPath(t, engineSQLite)
	mustRun(t, fruit, "--db", db, "-t", "color", "import")

	out := mustRun(t, "", "--db", db, "--compress", "stats")
	assert.Contains(t, out, "# TYPE tagstore_known_entries gauge")
	assert.Contains(t, out, "tagstore_known_entries 3")
	assert.Contains(t, out, "tagstore_tags 2")
}

func TestCompressedRoundTrip(t *testing.T) {
	db := dbPath(t, engineBadger)
	global := []string{"--db", db, "--engine", engineBadger, "--compress", "--compress-threshold", "16"}

	body := `{"text":"` + strings.Repeat("tag store ", 50) + `"}`
	mustRun(t, "", append(global, "put", "--key", "long-entry", body)...)

	// Payloads written compressed stay readable without the flag.
	out := mustRun(t, "", "--db", db, "--engine", engineBadger, "get", "long-entry")
	var view entryView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, strings.Repeat("tag store ", 50), view.Data["text"])
}

func TestImportRejectsNonStringKey(t *testing.T) {
	db := dbPath(t, engineSQLite)
	input := `{"name":"apple","color":"red"}
{"name":12345,"color":"green"}
`
	_, err := run(t, input, "--db", db, "-t", "color", "import", "--key-field", "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), `key field "name" must be a string`)

	assert.Equal(t, "0\n", mustRun(t, "", "--db", db, "count"))
}
