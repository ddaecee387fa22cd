package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/buzzylabs/buzzy/domain/repositories"
)

// FunctionResult is the outcome of one model-invoked function.
type FunctionResult struct {
	Text string
	// Replay is true when the output should be passed back to the model
	// again, false when it can be sent directly back to the user.
	Replay bool
}

// FunctionRunner executes one declared function.
type FunctionRunner func(ctx context.Context, args map[string]any) (FunctionResult, error)

type registeredFunction struct {
	declaration *genai.FunctionDeclaration
	run         FunctionRunner
}

// FunctionRegistry holds the functions declared to the model.
type FunctionRegistry struct {
	functions map[string]registeredFunction
	logger    *zap.Logger
	now       func() time.Time
}

// NewFunctionRegistry builds the registry with the built-in functions.
func NewFunctionRegistry(logger *zap.Logger) *FunctionRegistry {
	r := &FunctionRegistry{
		functions: make(map[string]registeredFunction),
		logger:    logger,
		now:       time.Now,
	}

	r.register(&genai.FunctionDeclaration{
		Name:        "days_until",
		Description: "Get the number of days until a specific date",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"month": {
					Type:        genai.TypeString,
					Enum:        monthNames,
					Description: "The month that the date falls in",
				},
				"year": {
					Type:        genai.TypeInteger,
					Description: "The year that the date falls in",
				},
				"day_of_month": {
					Type:        genai.TypeInteger,
					Description: "The day of the month that the date falls in",
				},
			},
			Required: []string{"month"},
		},
	}, r.runDaysUntil)

	r.register(&genai.FunctionDeclaration{
		Name:        "web_search",
		Description: "Search the internet to help answer factual questions",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "A search query that can provide information to help answer the question",
				},
			},
			Required: []string{"query"},
		},
	}, r.runWebSearch)

	return r
}

func (r *FunctionRegistry) register(decl *genai.FunctionDeclaration, run FunctionRunner) {
	r.functions[decl.Name] = registeredFunction{declaration: decl, run: run}
}

// Declarations returns the function declarations to advertise to the model.
func (r *FunctionRegistry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.functions))
	for _, fn := range r.functions {
		decls = append(decls, fn.declaration)
	}
	return decls
}

// Run executes the named function.
func (r *FunctionRegistry) Run(ctx context.Context, call repositories.FunctionCall) (FunctionResult, error) {
	fn, ok := r.functions[call.Name]
	if !ok {
		return FunctionResult{}, fmt.Errorf("unknown function %q", call.Name)
	}

	r.logger.Info("Running model function",
		zap.String("name", call.Name),
		zap.Any("args", call.Args))

	return fn.run(ctx, call.Args)
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// runDaysUntil computes the number of days from today to the requested
// date. Year and day default to the next occurrence of the month.
func (r *FunctionRegistry) runDaysUntil(ctx context.Context, args map[string]any) (FunctionResult, error) {
	monthName, _ := args["month"].(string)
	month, err := parseMonth(monthName)
	if err != nil {
		return FunctionResult{}, err
	}

	day := 1
	if v, ok := asInt(args["day_of_month"]); ok {
		day = v
	}
	if day < 1 || day > 31 {
		return FunctionResult{}, fmt.Errorf("invalid day of month %d", day)
	}

	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	year := today.Year()
	if v, ok := asInt(args["year"]); ok {
		year = v
	}
	target := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)

	// Without an explicit year, a date already behind us means the next
	// occurrence.
	if _, explicit := asInt(args["year"]); !explicit && target.Before(today) {
		target = time.Date(year+1, month, day, 0, 0, 0, 0, time.UTC)
	}

	days := int(target.Sub(today).Hours() / 24)
	if days < 0 {
		return FunctionResult{
			Text:   fmt.Sprintf("%s %d, %d was %d days ago.", monthName, day, target.Year(), -days),
			Replay: true,
		}, nil
	}

	return FunctionResult{
		Text:   fmt.Sprintf("There are %d days until %s %d, %d.", days, monthName, day, target.Year()),
		Replay: true,
	}, nil
}

// runWebSearch is not wired to a search backend yet.
// TODO run the search and return results
func (r *FunctionRegistry) runWebSearch(ctx context.Context, args map[string]any) (FunctionResult, error) {
	query, _ := args["query"].(string)
	r.logger.Warn("Web search requested but no backend is configured",
		zap.String("query", query))
	return FunctionResult{Text: "", Replay: true}, nil
}

func parseMonth(name string) (time.Month, error) {
	for i, m := range monthNames {
		if m == name {
			return time.Month(i + 1), nil
		}
	}
	return 0, fmt.Errorf("invalid month %q", name)
}

// asInt accepts the numeric shapes JSON decoding produces.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
