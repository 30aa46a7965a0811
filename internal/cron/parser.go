// Package cron wraps robfig/cron parsing with IANA timezone resolution.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields fire times after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

type Parser struct {
	parser cron.Parser
}

// NewParser accepts standard five-field expressions (minute granularity).
func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Parse validates expression and timezone together and returns a Schedule
// that evaluates fire times in that timezone.
func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &schedule{sched: sched, loc: loc}, nil
}

// Validate checks expression and timezone without building a schedule.
func (p *Parser) Validate(expression string, timezone string) error {
	_, err := p.Parse(expression, timezone)
	return err
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}
