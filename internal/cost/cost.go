// Package cost estimates the monthly cost of running the platform on
// Cloudflare.
package cost

import (
	"math"
	"sort"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
)

// Workers plans.
const (
	PlanFree    = "free"
	PlanBundled = "bundled"
	PlanUnbound = "unbound"
)

type plan struct {
	fixed        float64
	freeRequests float64
}

var plans = map[string]plan{
	PlanFree:    {fixed: 0, freeRequests: 3_000_000},
	PlanBundled: {fixed: 5, freeRequests: 10_000_000},
	PlanUnbound: {fixed: 25, freeRequests: 1_000_000},
}

// Usage is the monthly usage to price
type Usage struct {
	WorkersRequests       int64
	R2StorageGB           int64
	D1StorageGB           int64
	D1ReadRows            int64
	D1WriteRows           int64
	KVStorageGB           float64
	KVReads               int64
	KVWrites              int64
	AnalyticsEngineWrites int64
	WorkersPlan           string
	GitHubActionsMinutes  int64
}

// DefaultUsage returns the usage defaults applied to custom estimates.
func DefaultUsage() Usage {
	return Usage{
		D1StorageGB:           1,
		D1ReadRows:            1_000_000,
		D1WriteRows:           10_000,
		KVStorageGB:           0.1,
		KVReads:               100_000,
		KVWrites:              1_000,
		AnalyticsEngineWrites: 100_000,
		WorkersPlan:           PlanFree,
	}
}

// Workers is the Workers share of an estimate
type Workers struct {
	Fixed    float64 `json:"fixed"`
	Requests float64 `json:"requests"`
	Total    float64 `json:"total"`
}

// R2 is the object storage share of an estimate
type R2 struct {
	Storage float64 `json:"storage"`
	ClassA  float64 `json:"class_a"`
	ClassB  float64 `json:"class_b"`
	Total   float64 `json:"total"`
}

// Store is the share of a storage service billed by size, reads and writes
type Store struct {
	Storage float64 `json:"storage"`
	Read    float64 `json:"read"`
	Write   float64 `json:"write"`
	Total   float64 `json:"total"`
}

// Breakdown is the per-service cost
type Breakdown struct {
	Workers         Workers `json:"workers"`
	R2              R2      `json:"r2"`
	R2Catalog       float64 `json:"r2_catalog"`
	D1              Store   `json:"d1"`
	KV              Store   `json:"kv"`
	AnalyticsEngine float64 `json:"analytics_engine"`
	GitHubActions   float64 `json:"github_actions"`
}

// Estimate is the monthly cost in USD
type Estimate struct {
	Total     float64   `json:"total"`
	Fixed     float64   `json:"fixed_cost"`
	Variable  float64   `json:"variable_cost"`
	Breakdown Breakdown `json:"breakdown"`
}

// Yearly returns twelve times the monthly total.
func (e Estimate) Yearly() float64 {
	return e.Total * 12
}

// over returns the billable amount above a free allowance, per unit.
func over(used, free, unit, price float64) float64 {
	return math.Max(0, (used-free)/unit*price)
}

// Calculate prices u.
func Calculate(u Usage) (Estimate, error) {
	p, ok := plans[u.WorkersPlan]
	if !ok {
		return Estimate{}, apperr.Valuef("unknown workers plan: %s", u.WorkersPlan)
	}

	var b Breakdown
	b.Workers.Fixed = p.fixed
	b.Workers.Requests = over(float64(u.WorkersRequests), p.freeRequests, 1_000_000, 0.5)
	b.Workers.Total = b.Workers.Fixed + b.Workers.Requests

	// Class A and B operations stay within the free allowance.
	b.R2.Storage = over(float64(u.R2StorageGB), 10, 1, 0.015)
	b.R2.Total = b.R2.Storage + b.R2.ClassA + b.R2.ClassB

	b.D1.Storage = over(float64(u.D1StorageGB), 5, 1, 0.75)
	b.D1.Read = over(float64(u.D1ReadRows), 750_000_000, 1_000_000, 0.001)
	b.D1.Write = over(float64(u.D1WriteRows), 1_500_000, 1_000_000, 1.0)
	b.D1.Total = b.D1.Storage + b.D1.Read + b.D1.Write

	b.KV.Storage = over(u.KVStorageGB, 1, 1, 0.5)
	b.KV.Read = over(float64(u.KVReads), 300_000_000, 1_000_000, 0.5)
	b.KV.Write = over(float64(u.KVWrites), 30_000_000, 1_000_000, 5.0)
	b.KV.Total = b.KV.Storage + b.KV.Read + b.KV.Write

	b.AnalyticsEngine = over(float64(u.AnalyticsEngineWrites), 10_000_000, 1_000_000, 0.25)
	b.GitHubActions = over(float64(u.GitHubActionsMinutes), 2_000, 1_000, 8.0)

	variable := b.Workers.Requests + b.R2.Total + b.D1.Total + b.KV.Total +
		b.AnalyticsEngine + b.R2Catalog + b.GitHubActions
	return Estimate{
		Total:     p.fixed + variable,
		Fixed:     p.fixed,
		Variable:  variable,
		Breakdown: b,
	}, nil
}

// Scenario is a named, predefined usage profile
type Scenario struct {
	Key   string
	Name  string
	Usage Usage
}

// Scenarios are the predefined usage profiles by key.
var Scenarios = map[string]Scenario{
	"small": {
		Key:  "small",
		Name: "Startup (small)",
		Usage: Usage{
			WorkersRequests:       3_000_000,
			R2StorageGB:           50,
			D1StorageGB:           1,
			D1ReadRows:            1_000_000,
			D1WriteRows:           10_000,
			KVStorageGB:           0.1,
			KVReads:               100_000,
			KVWrites:              720,
			AnalyticsEngineWrites: 100_000,
			WorkersPlan:           PlanFree,
		},
	},
	"medium": {
		Key:  "medium",
		Name: "Mid-size startup",
		Usage: Usage{
			WorkersRequests:       30_000_000,
			R2StorageGB:           500,
			D1StorageGB:           5,
			D1ReadRows:            10_000_000,
			D1WriteRows:           100_000,
			KVStorageGB:           1,
			KVReads:               10_000_000,
			KVWrites:              2_880,
			AnalyticsEngineWrites: 5_000_000,
			WorkersPlan:           PlanBundled,
		},
	},
	"large": {
		Key:  "large",
		Name: "Growth company (large)",
		Usage: Usage{
			WorkersRequests:       300_000_000,
			R2StorageGB:           2000,
			D1StorageGB:           10,
			D1ReadRows:            100_000_000,
			D1WriteRows:           500_000,
			KVStorageGB:           5,
			KVReads:               50_000_000,
			KVWrites:              1_000_000,
			AnalyticsEngineWrites: 50_000_000,
			WorkersPlan:           PlanUnbound,
			GitHubActionsMinutes:  14_400,
		},
	},
}

var scenarioOrder = map[string]int{"small": 0, "medium": 1, "large": 2}

// ScenarioKeys returns the scenario keys from smallest to largest.
func ScenarioKeys() []string {
	keys := make([]string, 0, len(Scenarios))
	for k := range Scenarios {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return scenarioOrder[keys[i]] < scenarioOrder[keys[j]] })
	return keys
}

// Lookup returns the scenario with the given key.
func Lookup(key string) (Scenario, error) {
	s, ok := Scenarios[key]
	if !ok {
		return Scenario{}, apperr.Valuef("unknown scenario: %s", key)
	}
	return s, nil
}
