package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"triagem/internal/triage"
)

func setupEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GENERATION_BASE_URL", "")
	t.Setenv("ZERO_SHOT_URL", "")
	t.Setenv("OUTPUT_DIR", dir)

	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestTextCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "text", "Solicito", "acesso", "ao", "sistema")
	require.NoError(t, err)

	require.Contains(t, out, "Resumo (regra)")
	require.Contains(t, out, "Solicita acesso ao sistema.")
	require.Contains(t, out, "Categoria (heurística)")
	require.Contains(t, out, "Suporte técnico")
}

func TestTextCommandReadsStdinAndLabels(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "Como faço para mudar o plano?", "text", "--labels", "Dúvida; Financeiro")
	require.NoError(t, err)

	require.Contains(t, out, "Dúvida")
	require.Contains(t, out, "Financeiro")
	require.NotContains(t, out, "Reclamação")
}

func TestTextCommandRejectsEmptyInput(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "  \n", "text")
	require.Error(t, err)
}

func TestCSVCommand(t *testing.T) {
	dir := setupEnv(t)

	path := filepath.Join(dir, "tickets.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,descricao\n1,Solicito acesso ao sistema\n2,O app não funciona\n"), 0o600))

	out, err := execute(t, "", "csv", path, "--column", "descricao", "--sep", ",")
	require.NoError(t, err)

	require.Contains(t, out, "2 tickets processados")
	require.Contains(t, out, triage.CategoryColumn)
	require.Contains(t, out, triage.OutputFileName)
}

func TestCSVCommandErrors(t *testing.T) {
	dir := setupEnv(t)

	path := filepath.Join(dir, "tickets.csv")
	require.NoError(t, os.WriteFile(path, []byte("id;texto\n1;x\n"), 0o600))

	_, err := execute(t, "", "csv", path, "--column", "descricao")
	require.ErrorIs(t, err, triage.ErrColumnNotFound)

	_, err = execute(t, "", "csv", path)
	require.Error(t, err)

	_, err = execute(t, "", "csv", filepath.Join(dir, "missing.csv"), "--column", "texto")
	require.Error(t, err)
}

func TestReadFileLimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.csv")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o600))

	data, err := readFileLimited(path, 6)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(data))

	_, err = readFileLimited(path, 5)
	require.Error(t, err)
}
