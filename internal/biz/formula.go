package biz

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"docintel/internal/domain"
)

// 公式只允许数值常量/标识符/一元 + - not/二元 + - * / and or
// 其余节点与运算符一律拒绝; && || ! 是 and or not 的等价写法
var allowedBinaryOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"and": true, "or": true, "&&": true, "||": true,
}

var allowedUnaryOps = map[string]bool{
	"-": true, "+": true, "not": true, "!": true,
}

type formulaVisitor struct {
	err error
}

func (v *formulaVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.IdentifierNode:
	case *ast.UnaryNode:
		if !allowedUnaryOps[n.Operator] {
			v.err = fmt.Errorf("%w: operator %q not allowed", domain.ErrInvalidFormula, n.Operator)
		}
	case *ast.BinaryNode:
		if !allowedBinaryOps[n.Operator] {
			v.err = fmt.Errorf("%w: operator %q not allowed", domain.ErrInvalidFormula, n.Operator)
		}
	default:
		v.err = fmt.Errorf("%w: unsupported expression element %T", domain.ErrInvalidFormula, *node)
	}
}

// FormulaProgram 编译后的公式字段
type FormulaProgram struct {
	program *vm.Program
	opts    *domain.FormulaOptions
}

// CompileFormula 校验并编译公式; 创建字段时调用, 解析失败即拒绝
func CompileFormula(opts *domain.FormulaOptions) (*FormulaProgram, error) {
	if opts == nil || strings.TrimSpace(opts.FormulaStr) == "" {
		return nil, domain.ErrInvalidFormula
	}
	tree, err := parser.Parse(opts.FormulaStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormula, err)
	}
	v := &formulaVisitor{}
	ast.Walk(&tree.Node, v)
	if v.err != nil {
		return nil, v.err
	}
	program, err := expr.Compile(opts.FormulaStr, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFormula, err)
	}
	return &FormulaProgram{program: program, opts: opts}, nil
}

// Eval 以父字段值为环境求值
// values 的键是 field id; 符号绑定来自 formula_field_map
func (p *FormulaProgram) Eval(values map[string]any) (any, error) {
	env := map[string]any{}
	for fieldID, symbol := range p.opts.FormulaFieldMap {
		env[symbol] = coerceOperand(values[fieldID])
	}
	out, err := vm.Run(p.program, env)
	if err != nil {
		return nil, err
	}
	return p.formatOutput(out), nil
}

// coerceOperand Yes/No 按布尔处理, 数字字符串转数值
func coerceOperand(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}

// formatOutput 输出侧先过 formula_output_cast 再按 formula_format_output 定型
func (p *FormulaProgram) formatOutput(out any) any {
	if cast := p.opts.FormulaOutputCast; len(cast) > 0 {
		if mapped, ok := ApplyCast(cast, out); ok {
			out = mapped
		}
	}
	switch p.opts.FormulaFormatOutput {
	case "integer":
		if f, ok := toFloat(out); ok {
			return int64(math.Trunc(f))
		}
	case "float":
		if f, ok := toFloat(out); ok {
			return f
		}
	case "boolean":
		return IsTruthy(out)
	case "text":
		if out == nil {
			return ""
		}
		return fmt.Sprintf("%v", out)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
