package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeTrainingCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("CUST_ID,INCOME,SAVINGS,DEBT,R_DEBT_INCOME,CAT_GAMBLING,NICKNAME\n")
	gambling := []string{"No", "Low", "High"}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "C%03d,%d,%d,%d,%.2f,%s,n%d\n",
			i, 20000+800*i, (i*3700)%50000, (i*5300)%40000, float64(i%7)*0.6, gambling[i%3], i)
	}
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "scorelens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
store:
  backend: file
  dir: %s
training:
  estimators: 10
  background_size: 10
logging:
  level: error
`, filepath.Join(dir, "models"))), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTrainExplainAndRollback(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	conf := writeConfig(t, dir)
	data := writeTrainingCSV(t, dir, 40)
	output = "json"

	out, err := execute(t, "--config", conf, "train", "--data", data, "--activate", "--no-progress")
	require.NoError(t, err)
	var card struct {
		Version  string   `json:"version"`
		Features []string `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &card))
	assert.NotEmpty(t, card.Version)
	assert.NotContains(t, card.Features, "NICKNAME")
	assert.NotContains(t, card.Features, "CUST_ID")

	out, err = execute(t, "--config", conf, "explain", "--record", `{"INCOME": 30000, "DEBT": 1000}`)
	require.NoError(t, err)
	var analyzed struct {
		CreditScore int            `json:"credit_score"`
		Explanation map[string]any `json:"explanation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &analyzed))
	assert.GreaterOrEqual(t, analyzed.CreditScore, 300)
	assert.Contains(t, analyzed.Explanation, "explanation_text")

	out, err = execute(t, "--config", conf, "--format", "yaml", "versions")
	require.NoError(t, err)
	var list versionList
	require.NoError(t, yaml.Unmarshal([]byte(out), &list))
	assert.Equal(t, card.Version, list.Active)
	assert.Equal(t, []string{card.Version}, list.Versions)
	output = "json"

	_, err = execute(t, "--config", conf, "verify")
	require.NoError(t, err)

	_, err = execute(t, "--config", conf, "rollback")
	assert.Error(t, err, "nothing to roll back to after the first activation")
}

func TestPredictRequiresRecord(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	conf := writeConfig(t, dir)

	_, err := execute(t, "--config", conf, "predict", "--record", "")
	assert.ErrorContains(t, err, "--record")
}

func TestWriteOutput(t *testing.T) {
	t.Cleanup(func() { output = "json" })
	value := versionList{Active: "gbt-1", Versions: []string{"gbt-1", "gbt-2"}}

	var buf bytes.Buffer
	output = "yaml"
	require.NoError(t, writeOutput(&buf, value))
	assert.Equal(t, "active: gbt-1\nversions:\n  - gbt-1\n  - gbt-2\n", buf.String())

	buf.Reset()
	output = "json"
	require.NoError(t, writeOutput(&buf, value))
	assert.JSONEq(t, `{"active":"gbt-1","versions":["gbt-1","gbt-2"]}`, buf.String())

	output = "xml"
	assert.Error(t, writeOutput(&buf, value))
}
