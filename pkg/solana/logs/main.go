// Package logs rebuilds the invocation tree of a Solana transaction from its log messages.
package logs

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

type (
	LogLineType uint8
	Invocation  struct {
		Program          solana.PublicKey
		Depth            int
		Success          bool
		Error            string
		Logs             []LogLine
		ReturnData       []byte
		ComputeConsumed  uint64
		ComputeAvailable uint64
		Subcalls         []*Invocation
	}

	LogLine struct {
		Type   LogLineType
		Data   [][]byte
		String string
	}
)

const (
	LogLineTypeString LogLineType = 1
	LogLineTypeData   LogLineType = 2
)

var (
	invocationExp  = regexp.MustCompile(`^Program (\S+) invoke \[(\d+)]$`)
	programLogExp  = regexp.MustCompile(`^Program log: (.*)$`)
	programDataExp = regexp.MustCompile(`^Program data: (.*)$`)
	returnDataExp  = regexp.MustCompile(`^Program return: (\S+) (\S*)$`)
	consumptionExp = regexp.MustCompile(`^Program (\S+) consumed (\d+) of (\d+) compute units$`)
	resultExp      = regexp.MustCompile(`^Program (\S+) (success|failed: (.*))$`)
	// Emitted by newer validators and by the runtime when the log buffer is exhausted. Carries nothing we need.
	ignoredExp = regexp.MustCompile(`^(Log truncated|Program consumption: .*)$`)
)

// ParseLogs parses the log messages of one transaction into its top-level invocations.
func ParseLogs(logLines []string) ([]*Invocation, error) {
	var (
		roots []*Invocation
		stack []*Invocation
	)

	current := func() *Invocation {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for n, line := range logLines {
		if m := invocationExp.FindStringSubmatch(line); m != nil {
			program, err := solana.PublicKeyFromBase58(m[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: could not parse program key %s: %w", n, m[1], err)
			}
			depth, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: could not parse depth %s: %w", n, m[2], err)
			}
			if depth != len(stack)+1 {
				return nil, fmt.Errorf("line %d: invoke depth %d inside depth %d", n, depth, len(stack))
			}

			inv := &Invocation{Program: program, Depth: depth}
			if parent := current(); parent != nil {
				parent.Subcalls = append(parent.Subcalls, inv)
			} else {
				roots = append(roots, inv)
			}
			stack = append(stack, inv)
			continue
		}

		if ignoredExp.MatchString(line) {
			continue
		}

		inv := current()
		if inv == nil {
			return nil, fmt.Errorf("line %d: log outside of an invocation: %s", n, line)
		}

		switch {
		case programLogExp.MatchString(line):
			inv.Logs = append(inv.Logs, LogLine{
				Type:   LogLineTypeString,
				String: programLogExp.FindStringSubmatch(line)[1],
			})

		case programDataExp.MatchString(line):
			var data [][]byte
			for _, field := range strings.Fields(programDataExp.FindStringSubmatch(line)[1]) {
				decoded, err := base64.StdEncoding.DecodeString(field)
				if err != nil {
					return nil, fmt.Errorf("line %d: could not parse data log %s: %w", n, field, err)
				}
				data = append(data, decoded)
			}
			inv.Logs = append(inv.Logs, LogLine{Type: LogLineTypeData, Data: data})

		case returnDataExp.MatchString(line):
			m := returnDataExp.FindStringSubmatch(line)
			decoded, err := base64.StdEncoding.DecodeString(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: could not parse return data %s: %w", n, m[2], err)
			}
			inv.ReturnData = decoded

		case consumptionExp.MatchString(line):
			m := consumptionExp.FindStringSubmatch(line)
			if err := expectProgram(inv, m[1]); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			consumed, err := strconv.ParseUint(m[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: could not parse consumed units %s: %w", n, m[2], err)
			}
			available, err := strconv.ParseUint(m[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: could not parse available units %s: %w", n, m[3], err)
			}
			inv.ComputeConsumed = consumed
			inv.ComputeAvailable = available

		case resultExp.MatchString(line):
			m := resultExp.FindStringSubmatch(line)
			if err := expectProgram(inv, m[1]); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if m[2] == "success" {
				inv.Success = true
			} else {
				inv.Error = m[3]
			}
			stack = stack[:len(stack)-1]

		default:
			return nil, fmt.Errorf("line %d: unknown log line type: %s", n, line)
		}
	}

	return roots, nil
}

func expectProgram(inv *Invocation, key string) error {
	program, err := solana.PublicKeyFromBase58(key)
	if err != nil {
		return fmt.Errorf("could not parse program key %s: %w", key, err)
	}
	if !program.Equals(inv.Program) {
		return fmt.Errorf("wrong program; expected %s; got %s", inv.Program, program)
	}
	return nil
}

// Walk calls fn for every invocation in the tree, parents before children.
func Walk(invocations []*Invocation, fn func(*Invocation)) {
	for _, inv := range invocations {
		fn(inv)
		Walk(inv.Subcalls, fn)
	}
}

// HasLog reports whether a successful invocation of one of programs logged exactly message.
func HasLog(invocations []*Invocation, message string, programs ...solana.PublicKey) bool {
	found := false
	Walk(invocations, func(inv *Invocation) {
		if found || !inv.Success || !inv.isOneOf(programs) {
			return
		}
		for _, l := range inv.Logs {
			if l.Type == LogLineTypeString && l.String == message {
				found = true
				return
			}
		}
	})
	return found
}

func (inv *Invocation) isOneOf(programs []solana.PublicKey) bool {
	if len(programs) == 0 {
		return true
	}
	for _, p := range programs {
		if p.Equals(inv.Program) {
			return true
		}
	}
	return false
}
