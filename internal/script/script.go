// Package script loads and plays host-side APDU exchange scripts.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/apductl/internal/apdu"
)

var (
	ErrInvalidScript     = errors.New("script: invalid")
	ErrExpectationFailed = errors.New("script: expectation failed")
)

// Script is an ordered list of command frames with expected responses.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step sends one APDU. ExpectSW and ExpectData are hex; empty means any.
type Step struct {
	Name       string `yaml:"name"`
	APDU       string `yaml:"apdu"`
	ExpectSW   string `yaml:"expect_sw,omitempty"`
	ExpectData string `yaml:"expect_data,omitempty"`
}

// HostExchanger sends one frame and returns the device response.
type HostExchanger interface {
	Exchange(ctx context.Context, frame []byte) ([]byte, error)
}

type StepResult struct {
	Name     string
	Command  []byte
	Response []byte
	SW       apdu.StatusWord
	Passed   bool
	Reason   string
}

type Report struct {
	Script string
	Steps  []StepResult
	Passed int
	Failed int
}

// Load reads a YAML script, rejecting unknown fields.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return Script{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(s); err != nil {
		return Script{}, err
	}
	return s, nil
}

func validate(s Script) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: steps list is required and must be non-empty", ErrInvalidScript)
	}
	for i, step := range s.Steps {
		frame, err := apdu.DecodeHex(step.APDU)
		if err != nil {
			return fmt.Errorf("%w: step[%d] apdu: %w", ErrInvalidScript, i, err)
		}
		if len(frame) == 0 {
			return fmt.Errorf("%w: step[%d] apdu is empty", ErrInvalidScript, i)
		}
		if step.ExpectSW != "" {
			if _, err := parseSW(step.ExpectSW); err != nil {
				return fmt.Errorf("%w: step[%d] expect_sw: %w", ErrInvalidScript, i, err)
			}
		}
		if _, err := apdu.DecodeHex(step.ExpectData); err != nil {
			return fmt.Errorf("%w: step[%d] expect_data: %w", ErrInvalidScript, i, err)
		}
	}
	return nil
}

func parseSW(raw string) (apdu.StatusWord, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(raw)), "0x")
	v, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, err
	}
	return apdu.StatusWord(v), nil
}

// Play runs every step in order. Expectation failures are collected in the
// report; a transport error stops playback.
func Play(ctx context.Context, ex HostExchanger, s Script) (Report, error) {
	report := Report{Script: s.Name, Steps: make([]StepResult, 0, len(s.Steps))}
	for i, step := range s.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		frame, err := apdu.DecodeHex(step.APDU)
		if err != nil {
			return report, fmt.Errorf("%w: %s: %w", ErrInvalidScript, name, err)
		}
		resp, err := ex.Exchange(ctx, frame)
		if err != nil {
			return report, fmt.Errorf("script: %s: exchange: %w", name, err)
		}
		res := check(step, resp)
		res.Name = name
		res.Command = frame
		report.Steps = append(report.Steps, res)
		if res.Passed {
			report.Passed++
			log.Info().Str("step", name).Str("sw", res.SW.String()).Msg("script.Play step passed")
		} else {
			report.Failed++
			log.Warn().Str("step", name).Str("reason", res.Reason).Msg("script.Play step failed")
		}
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d steps", ErrExpectationFailed, report.Failed, len(s.Steps))
	}
	return report, nil
}

func check(step Step, resp []byte) StepResult {
	res := StepResult{Response: resp}
	data, sw, err := apdu.SplitResponse(resp)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	res.SW = sw
	if step.ExpectSW != "" {
		want, _ := parseSW(step.ExpectSW)
		if sw != want {
			res.Reason = fmt.Sprintf("status %s want %s", sw, want)
			return res
		}
	}
	if step.ExpectData != "" {
		want, _ := apdu.DecodeHex(step.ExpectData)
		if !bytes.Equal(data, want) {
			res.Reason = fmt.Sprintf("data %x want %x", data, want)
			return res
		}
	}
	res.Passed = true
	return res
}
