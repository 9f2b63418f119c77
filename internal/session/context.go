package session

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

var factOrder = []string{"location", "dates", "budget", "interests"}

type TravelContext struct {
	Facts    map[string]*string
	Messages []Message
}

func NewTravelContext() *TravelContext {
	facts := make(map[string]*string, len(factOrder))
	for _, name := range factOrder {
		facts[name] = nil
	}
	return &TravelContext{
		Facts:    facts,
		Messages: []Message{},
	}
}

func (c *TravelContext) MissingInfo() []string {
	var missing []string
	for _, name := range factOrder {
		if c.Facts[name] == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// SetFact — точка подключения экстрактора фактов; продакшен-код его пока не вызывает.
func (c *TravelContext) SetFact(name, value string) bool {
	if _, known := c.Facts[name]; !known {
		return false
	}
	c.Facts[name] = &value
	return true
}

func (c *TravelContext) Fact(name string) string {
	if v := c.Facts[name]; v != nil {
		return *v
	}
	return ""
}

func (c *TravelContext) FactsSummary() string {
	parts := make([]string, 0, len(factOrder))
	for _, name := range factOrder {
		value := "не указано"
		if v := c.Facts[name]; v != nil {
			value = *v
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, value))
	}
	return strings.Join(parts, ", ")
}

func (c *TravelContext) AddMessage(role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

func (c *TravelContext) ResetTranscript(history []Message) {
	type stamped struct {
		msg Message
		ts  time.Time
	}

	entries := make([]stamped, len(history))
	sortable := len(history) > 0
	for i, msg := range history {
		entries[i].msg = msg
		ts, err := parseTimestamp(msg.Timestamp)
		if err != nil {
			sortable = false
		}
		entries[i].ts = ts
	}
	if sortable {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ts.Before(entries[j].ts)
		})
	}

	transcript := make([]Message, len(entries))
	for i, entry := range entries {
		transcript[i] = entry.msg
	}
	c.Messages = transcript
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("пустая метка времени")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("нераспознанная метка времени: %s", value)
}
