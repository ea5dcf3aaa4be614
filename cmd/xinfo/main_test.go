package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xinfo/internal/binimg"
	"xinfo/internal/catalog"
	"xinfo/internal/config"
	"xinfo/internal/disasm"
	"xinfo/internal/testutil/fakebin"
	"xinfo/internal/xtab"
)

func testOptions(fs afero.Fs, env map[string]string) *options {
	return &options{
		fs:     fs,
		getenv: func(k string) string { return env[k] },
		run: func(ctx context.Context, name string, args ...string) (string, int, error) {
			return "23\n", 0, nil
		},
		stderr: io.Discard,
	}
}

func TestResolveFromFlags(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/opt/oracle/bin/oracle", []byte{0x7f}, 0o755))

	o := testOptions(fs, nil)
	o.binary = "/opt/oracle/bin/oracle"
	o.version = 19
	o.output = config.OutputJSON
	o.force = true

	cfg, _, err := o.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/oracle/bin/oracle", cfg.Binary)
	assert.Equal(t, 19, cfg.Version)
	assert.Equal(t, config.OutputJSON, cfg.Output)
	assert.True(t, cfg.Refresh)
}

func TestResolveFromOracleHome(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/u01/db/bin/oracle", []byte{0x7f}, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/u01/db/bin/oraversion", []byte{0x7f}, 0o755))

	o := testOptions(fs, map[string]string{"ORACLE_HOME": "/u01/db"})
	cfg, _, err := o.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/u01/db/bin/oracle", cfg.Binary)
	assert.Equal(t, 23, cfg.Version)
	assert.Equal(t, config.OutputTable, cfg.Output)
}

func TestResolveConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/oracle", []byte{0x7f}, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/etc/xinfo.yaml", []byte(`
ora_binary: /srv/oracle
ora_version: 21
output: html
`), 0o644))

	o := testOptions(fs, nil)
	o.configPath = "/etc/xinfo.yaml"
	o.output = config.OutputJSON

	cfg, _, err := o.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/srv/oracle", cfg.Binary)
	assert.Equal(t, 21, cfg.Version)
	assert.Equal(t, config.OutputJSON, cfg.Output, "flags override the config file")
}

func TestResolveErrors(t *testing.T) {
	t.Run("verbose and quiet", func(t *testing.T) {
		o := testOptions(afero.NewMemMapFs(), nil)
		o.verbose, o.quiet = true, true
		_, _, err := o.resolve(context.Background())
		assert.ErrorIs(t, err, errVerboseQuiet)
	})
	t.Run("no ORACLE_HOME", func(t *testing.T) {
		o := testOptions(afero.NewMemMapFs(), nil)
		_, _, err := o.resolve(context.Background())
		require.ErrorIs(t, err, config.ErrOracleHome)
		assert.Contains(t, err.Error(), "ORACLE_HOME is not set")
	})
	t.Run("missing binary", func(t *testing.T) {
		o := testOptions(afero.NewMemMapFs(), nil)
		o.binary, o.version = "/nope/oracle", 19
		_, _, err := o.resolve(context.Background())
		require.ErrorIs(t, err, config.ErrInvalid)
		assert.Contains(t, err.Error(), "does not exist")
	})
	t.Run("missing config file", func(t *testing.T) {
		o := testOptions(afero.NewMemMapFs(), nil)
		o.configPath = "/nope.yaml"
		_, _, err := o.resolve(context.Background())
		assert.Error(t, err)
	})
	t.Run("bad output", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/oracle", []byte{0x7f}, 0o755))
		o := testOptions(fs, nil)
		o.binary, o.version, o.output = "/oracle", 19, "xml"
		_, _, err := o.resolve(context.Background())
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

// fixtureSession is a session over the in-memory fixture. f1 is patched to
// nop; call f2; ret.
func fixtureSession(t *testing.T) (*session, *fakebin.Fixture) {
	t.Helper()
	fx := fakebin.NewFixture(19)
	rel := uint32(fx.F2 - (fx.F1 + 6))
	fx.Patch(fx.F1, []byte{0x90, 0xe8, byte(rel), byte(rel >> 8), byte(rel >> 16), byte(rel >> 24), 0xc3})

	nop := zerolog.Nop()
	cfg := config.Default()
	cfg.Version = 19
	img := binimg.New(fx.Binary, nop)
	return &session{
		cfg:    cfg,
		logger: nop,
		img:    img,
		syms:   fx.Binary,
		arch:   disasm.ArchX86_64,
		cat:    catalog.New(xtab.NewDecoder(img, nop), nil, cfg, nop),
	}, fx
}

func TestSessionDisassemble(t *testing.T) {
	s, fx := fixtureSession(t)

	cbs, err := s.cat.Callbacks("X$TABLEA1")
	require.NoError(t, err)
	require.Len(t, cbs, 2)

	code, err := s.disassemble(cbs[0], 0)
	require.NoError(t, err)
	assert.Equal(t, "f1", code.Name)
	assert.Equal(t, fx.F1, code.Addr)
	assert.Equal(t, map[uint64]string{fx.F2: "f2"}, code.Callees)
	assert.Equal(t, []string{"f2"}, code.calleeNames())

	text := code.text()
	assert.Contains(t, text, "; <f1>")
	assert.Contains(t, text, "; -> f2")

	_, err = s.disassemble(binimg.Raw(0x1234), 0)
	assert.ErrorIs(t, err, binimg.ErrNotFound)
}

func TestSessionDisassembleSharedName(t *testing.T) {
	s, fx := fixtureSession(t)
	other := fx.AddFunc("f1")

	cbs, err := s.cat.Callbacks("X$TABLEA1")
	require.NoError(t, err)
	require.Equal(t, fx.F1, cbs[0].Addr)

	code, err := s.disassemble(cbs[0], 0)
	require.NoError(t, err)
	assert.Equal(t, fx.F1, code.Addr)
	assert.NotEqual(t, other, code.Addr)
	assert.Equal(t, uint64(8), code.Size)
	assert.Equal(t, []string{"f2"}, code.calleeNames())
}

func TestSessionDisassembleWithoutSize(t *testing.T) {
	s, _ := fixtureSession(t)
	b := s.syms.(*fakebin.Binary)
	addr := b.AddBytes([]byte{0x90, 0xc3})
	b.AddBytes(make([]byte, funcWindow))

	code, err := s.disassemble(binimg.Raw(addr).Resolve("anon"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(funcWindow), code.Size)
	assert.Equal(t, addr, code.Addr)
}

func TestSessionTableLinks(t *testing.T) {
	s, _ := fixtureSession(t)

	tables, err := s.tableLinks("X$TABLEA1", graphOpts{callees: true})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	tl := tables[0]
	assert.Equal(t, "X$TABLEA1", tl.Table)
	assert.Equal(t, "tablea1_c", tl.Struct)
	require.Len(t, tl.Callbacks, 2)
	assert.Equal(t, "f1", tl.Callbacks[0].Name)
	assert.Equal(t, []string{"f2"}, tl.Callbacks[0].Callees)
	assert.Empty(t, tl.Callbacks[1].Callees)

	tables, err = s.tableLinks("X$TABLEA1", graphOpts{})
	require.NoError(t, err)
	assert.Empty(t, tables[0].Callbacks[0].Callees)
}

func TestSessionTableLinksMaxTables(t *testing.T) {
	s, _ := fixtureSession(t)

	// X$TABLEA2 has no kqftap record, so it only decodes if the cut comes first.
	_, err := s.tableLinks("X$TABLEA*", graphOpts{callees: true})
	require.ErrorIs(t, err, binimg.ErrNotFound)

	tables, err := s.tableLinks("X$TABLEA*", graphOpts{callees: true, maxTables: 1})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "X$TABLEA1", tables[0].Table)
	assert.Equal(t, []string{"f2"}, tables[0].Callbacks[0].Callees)

	tables, err = s.tableLinks("X$NO_SUCH_TABLE", graphOpts{})
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "xinfo version dev\n", out.String())
}

func TestCommandArgs(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"desc"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestPerm(t *testing.T) {
	assert.Equal(t, "RX", perm(5))
	assert.Equal(t, "RW", perm(6))
	assert.Equal(t, "", perm(0))
}
