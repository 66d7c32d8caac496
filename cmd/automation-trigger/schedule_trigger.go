package main

import (
	"context"
	"shopfloor/domain"
	"shopfloor/domain/automation"
	"shopfloor/session"
	"sync"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var nowFunc = time.Now

type scheduledRule struct {
	entryID cron.EntryID
	spec    string
	name    string
}

// ScheduleTrigger fires the active schedule rules on their cron expressions.
type ScheduleTrigger struct {
	cron *cron.Cron

	mutex   sync.Mutex
	entries map[types.ID]scheduledRule
}

func NewScheduleTrigger() *ScheduleTrigger {
	return &ScheduleTrigger{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: map[types.ID]scheduledRule{},
	}
}

// cronSpec is the rule cron expression, prefixed with its timezone when the trigger names one.
func cronSpec(trigger domain.JSONMap) string {
	spec := trigger.String("cron")
	if tz := trigger.String("timezone"); tz != "" {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec
}

// Sync reconciles the cron entries with the active schedule rules and returns the number of scheduled rules.
func (t *ScheduleTrigger) Sync(ctx context.Context) (int, error) {
	rules, err := automation.QueryRulesFunc(&automation.RuleQuery{TriggerType: string(domain.TriggerSchedule), ActiveOnly: true},
		session.System(ctx))
	if err != nil {
		return 0, err
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	seen := map[types.ID]bool{}
	for _, rule := range rules {
		seen[rule.ID] = true
		spec := cronSpec(rule.TriggerConfig)
		fields := logrus.Fields{"rule": rule.ID, "cron": spec}
		if existing, found := t.entries[rule.ID]; found {
			if existing.spec == spec {
				continue
			}
			t.cron.Remove(existing.entryID)
			delete(t.entries, rule.ID)
		}

		ruleID := rule.ID
		entryID, err := t.cron.AddFunc(spec, func() { t.fire(ruleID, spec) })
		if err != nil {
			logrus.WithError(err).WithFields(fields).Warn("skip schedule rule with invalid cron expression")
			continue
		}
		t.entries[rule.ID] = scheduledRule{entryID: entryID, spec: spec, name: rule.Name}
		logrus.WithFields(fields).Info("schedule rule registered")
	}

	for id, entry := range t.entries {
		if !seen[id] {
			t.cron.Remove(entry.entryID)
			delete(t.entries, id)
			logrus.WithField("rule", id).Info("schedule rule unregistered")
		}
	}
	return len(t.entries), nil
}

func (t *ScheduleTrigger) fire(ruleID types.ID, spec string) {
	ctx := context.Background()
	triggerData := map[string]interface{}{
		"timestamp": nowFunc().UTC().Format(time.RFC3339),
		"cron":      spec,
	}
	fields := logrus.Fields{"rule": ruleID, "cron": spec}
	result, err := automation.ExecuteRuleFunc(ctx, ruleID, &automation.ExecutionRequest{TriggerData: triggerData}, session.System(ctx))
	if err != nil {
		logrus.WithError(err).WithFields(fields).Error("scheduled rule execution failed")
		return
	}
	logrus.WithFields(fields).WithField("success", result.Success).Info("scheduled rule executed")
}

// Next returns the next activation of each scheduled rule.
func (t *ScheduleTrigger) Next() map[types.ID]time.Time {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	next := map[types.ID]time.Time{}
	for id, entry := range t.entries {
		if e := t.cron.Entry(entry.entryID); e.Schedule != nil {
			next[id] = e.Schedule.Next(nowFunc())
		}
	}
	return next
}

func (t *ScheduleTrigger) Start() {
	t.cron.Start()
}

// Stop stops scheduling and waits for running executions.
func (t *ScheduleTrigger) Stop() {
	<-t.cron.Stop().Done()
}
