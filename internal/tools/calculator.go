package tools

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

var calcConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var calcFuncs = map[string]func(args []float64) (float64, error){
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log10),
	"log2":  unary(math.Log2),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"pow": func(args []float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow takes 2 arguments, got %d", len(args))
		}
		return math.Pow(args[0], args[1]), nil
	},
	"min": variadic(math.Min),
	"max": variadic(math.Max),
}

func unary(fn func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(args[0]), nil
	}
}

func variadic(fn func(a, b float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, errors.New("expected at least 1 argument")
		}
		v := args[0]
		for _, a := range args[1:] {
			v = fn(v, a)
		}
		return v, nil
	}
}

// Evaluate computes an arithmetic expression. It supports + - * / %,
// parentheses, the constants pi and e, and the functions in calcFuncs.
// Exponentiation is written pow(x, y).
func Evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, errors.New("empty expression")
	}
	if strings.Contains(expr, "**") || strings.Contains(expr, "^") {
		return 0, errors.New("use pow(x, y) for exponentiation")
	}
	// Thousands separators are common in model output.
	expr = strings.ReplaceAll(expr, "_", "")

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, err)
	}
	v, err := evalNode(node)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result of %q is not a finite number", expr)
	}
	return v, nil
}

func evalNode(n ast.Expr) (float64, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)

	case *ast.ParenExpr:
		return evalNode(n.X)

	case *ast.Ident:
		if v, ok := calcConstants[strings.ToLower(n.Name)]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown identifier %q", n.Name)

	case *ast.UnaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)

	case *ast.BinaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, errors.New("modulo by zero")
			}
			return math.Mod(x, y), nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)

	case *ast.CallExpr:
		ident, ok := n.Fun.(*ast.Ident)
		if !ok {
			return 0, errors.New("unsupported function call")
		}
		fn, ok := calcFuncs[strings.ToLower(ident.Name)]
		if !ok {
			return 0, fmt.Errorf("unknown function %q", ident.Name)
		}
		args := make([]float64, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := evalNode(a)
			if err != nil {
				return 0, err
			}
			args = append(args, v)
		}
		v, err := fn(args)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", ident.Name, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("unsupported expression %T", n)
}

// FormatNumber renders a result without a trailing ".0" for integral
// values.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

func (r *Registry) registerCalculator() {
	r.Register(&Tool{
		Name: "calculator",
		Description: "Evaluate an arithmetic expression exactly. Supports + - * / %, parentheses, pi, e, " +
			"and sqrt, abs, floor, ceil, round, exp, ln, log, log2, sin, cos, tan, pow(x, y), min, max. " +
			"Use it for any counting or arithmetic instead of computing in your head.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The expression to evaluate, e.g. (3 + 5) * pow(2, 3)",
				},
			},
			"required": []string{"expression"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			v, err := Evaluate(stringArg(args, "expression"))
			if err != nil {
				return "", err
			}
			return FormatNumber(v), nil
		},
	})
}
