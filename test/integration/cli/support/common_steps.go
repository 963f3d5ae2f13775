package support

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// iRunCommand executes a CLI command and records its output.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	// stdout carries results; logs and progress go to stderr
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// theCommandShouldSucceed verifies the command exited with code 0.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d\nOutput: %s", testCtx.LastExitCode, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command exited with a non-zero code.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded but was expected to fail\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	if !strings.Contains(strings.ToLower(testCtx.LastOutput), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, testCtx.LastOutput)
	}
	return nil
}

// stdoutJSON decodes the command's stdout as a JSON array of objects.
func (testCtx *TestContext) stdoutJSON() ([]map[string]any, error) {
	var data []map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &data); err != nil {
		return nil, fmt.Errorf("output is not a JSON array: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return data, nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastStdout)) {
		return fmt.Errorf("output is not valid JSON\nOutput: %s", testCtx.LastStdout)
	}
	return nil
}

func (testCtx *TestContext) theJSONShouldHaveEntries(n int) error {
	data, err := testCtx.stdoutJSON()
	if err != nil {
		return err
	}
	if len(data) != n {
		return fmt.Errorf("expected %d JSON entries, got %d", n, len(data))
	}
	return nil
}

// jsonFrames returns the frame objects of frame or sequence output.
func (testCtx *TestContext) jsonFrames() ([]map[string]any, error) {
	data, err := testCtx.stdoutJSON()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, entry := range data {
		frames, ok := entry["frames"].([]any)
		if !ok {
			out = append(out, entry)
			continue
		}
		for _, f := range frames {
			if m, ok := f.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (testCtx *TestContext) everyFrameShouldHaveStatus(status string) error {
	frames, err := testCtx.jsonFrames()
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errors.New("no frames in output")
	}
	for i, f := range frames {
		if f["status"] != status {
			return fmt.Errorf("frame %d has status %v, want %s", i, f["status"], status)
		}
	}
	return nil
}

func (testCtx *TestContext) everyRectifiedFrameShouldHaveATransform() error {
	frames, err := testCtx.jsonFrames()
	if err != nil {
		return err
	}
	for i, f := range frames {
		if f["status"] != "rectified" {
			continue
		}
		h, ok := f["transform"].([]any)
		if !ok || len(h) != 9 {
			return fmt.Errorf("frame %d has no 3x3 transform: %v", i, f["transform"])
		}
	}
	return nil
}

func (testCtx *TestContext) sequenceShouldHaveFrames(name string, n int) error {
	data, err := testCtx.stdoutJSON()
	if err != nil {
		return err
	}
	for _, entry := range data {
		if entry["name"] != name {
			continue
		}
		frames, _ := entry["frames"].([]any)
		if len(frames) != n {
			return fmt.Errorf("sequence %s has %d frames, want %d", name, len(frames), n)
		}
		return nil
	}
	return fmt.Errorf("sequence %s not found in output", name)
}

func (testCtx *TestContext) theOutputShouldBeValidCSVWithRows(n int) error {
	rows, err := csv.NewReader(strings.NewReader(testCtx.LastStdout)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(rows) == 0 || rows[0][0] != "session_id" {
		return errors.New("CSV output has no header")
	}
	if got := len(rows) - 1; got != n {
		return fmt.Errorf("expected %d CSV rows, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(filename string) error {
	fullPath := testCtx.path(testCtx.substituteCommandVariables(filename))
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", fullPath)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldNotExist(filename string) error {
	fullPath := testCtx.path(testCtx.substituteCommandVariables(filename))
	if _, err := os.Stat(fullPath); err == nil {
		return fmt.Errorf("file unexpectedly exists: %s", fullPath)
	}
	return nil
}

// theFileShouldContain verifies a file contains specific content.
func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	if err := testCtx.theFileShouldExist(filename); err != nil {
		return err
	}

	fullPath := testCtx.path(testCtx.substituteCommandVariables(filename))
	content, err := os.ReadFile(fullPath) //nolint:gosec // G304: Test file reading with controlled path
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}

	if !strings.Contains(string(content), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'\nActual content: %s",
			filename, expectedContent, string(content))
	}
	return nil
}

func (testCtx *TestContext) aFileWithContent(filename string, content *godog.DocString) error {
	return os.WriteFile(testCtx.path(filename), []byte(content.Content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, value)
	return nil
}

// RegisterCommonSteps registers command, output and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should have (\d+) entries$`, testCtx.theJSONShouldHaveEntries)
	sc.Step(`^every frame should have status "([^"]*)"$`, testCtx.everyFrameShouldHaveStatus)
	sc.Step(`^every rectified frame should have a transform$`, testCtx.everyRectifiedFrameShouldHaveATransform)
	sc.Step(`^sequence "([^"]*)" should have (\d+) frames$`, testCtx.sequenceShouldHaveFrames)
	sc.Step(`^the output should be CSV with (\d+) rows$`, testCtx.theOutputShouldBeValidCSVWithRows)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^a file "([^"]*)" with content:$`, testCtx.aFileWithContent)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}
