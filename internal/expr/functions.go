package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fnDef describes one built-in function. Arguments are passed unevaluated so
// conditionals and binding forms can control evaluation order.
type fnDef struct {
	minArgs int
	maxArgs int // -1 means unlimited
	call    func(args []node, env *env) (interface{}, error)
}

var functions map[string]fnDef

func init() {
	functions = map[string]fnDef{
		// Logical
		"IF":       {3, 3, fnIf},
		"AND":      {2, -1, fnAnd},
		"OR":       {2, -1, fnOr},
		"NOT":      {1, 1, fnNot},
		"ISNUMBER": {1, 1, fnIsNumber},
		"ISBLANK":  {1, 1, fnIsBlank},

		// Math
		"SUM":       {2, -1, fnSum},
		"AVERAGE":   {2, -1, fnAverage},
		"MAX":       {2, -1, fnMax},
		"MIN":       {2, -1, fnMin},
		"COUNT":     {1, -1, fnCount},
		"ROUND":     {2, 2, makeRound(math.Round)},
		"ROUNDUP":   {2, 2, makeRound(awayFromZero)},
		"ROUNDDOWN": {2, 2, makeRound(math.Trunc)},
		"ABS":       {1, 1, fnAbs},
		"SQRT":      {1, 1, fnSqrt},
		"POWER":     {2, 2, fnPower},
		"LOG":       {1, 2, fnLog},
		"CEILING":   {1, 2, makeSignificance(math.Ceil)},
		"FLOOR":     {1, 2, makeSignificance(math.Floor)},

		// Text
		"TRIM":        {1, 1, fnTrim},
		"CONCAT":      {2, -1, fnConcat},
		"CONCATENATE": {2, -1, fnConcat},

		// Error handling
		"IFERROR": {2, 2, fnIfError},
		"NOTNULL": {1, 2, fnNotNull},
		"COALESCE": {2, -1, fnCoalesce},

		// Conditional aggregation
		"SUMIF":   {2, 3, fnSumIf},
		"COUNTIF": {2, 2, fnCountIf},

		// Arrays
		"LET":    {3, -1, fnLet},
		"CHOOSE": {2, -1, fnChoose},
		"MAP":    {3, 3, fnMap},
		"INDEX":  {2, 2, fnIndex},
	}
}

func isFunction(name string) bool {
	_, ok := functions[strings.ToUpper(name)]
	return ok
}

func evalCall(n callNode, env *env) (interface{}, error) {
	def, ok := functions[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.name)
	}
	if len(n.args) < def.minArgs {
		return nil, fmt.Errorf("%s expects at least %d arguments, got %d", n.name, def.minArgs, len(n.args))
	}
	if def.maxArgs >= 0 && len(n.args) > def.maxArgs {
		return nil, fmt.Errorf("%s expects at most %d arguments, got %d", n.name, def.maxArgs, len(n.args))
	}
	return def.call(n.args, env)
}

// evalAll evaluates each argument eagerly.
func evalAll(args []node, env *env) ([]interface{}, error) {
	values := make([]interface{}, 0, len(args))
	for _, arg := range args {
		v, err := evalNode(arg, env)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// flattenNumbers collects numeric values, descending into arrays and
// skipping blanks and non-numeric text the way spreadsheet aggregates do.
func flattenNumbers(values []interface{}) []float64 {
	var nums []float64
	for _, v := range values {
		switch val := v.(type) {
		case float64:
			if !math.IsNaN(val) {
				nums = append(nums, val)
			}
		case []interface{}:
			nums = append(nums, flattenNumbers(val)...)
		}
	}
	return nums
}

// Logical functions

func fnIf(args []node, env *env) (interface{}, error) {
	cond, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return evalNode(args[1], env)
	}
	return evalNode(args[2], env)
}

func fnAnd(args []node, env *env) (interface{}, error) {
	for _, arg := range args {
		v, err := evalNode(arg, env)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(args []node, env *env) (interface{}, error) {
	for _, arg := range args {
		v, err := evalNode(arg, env)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func fnNot(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func fnIsNumber(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	f, ok := v.(float64)
	return ok && !math.IsNaN(f), nil
}

func fnIsBlank(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	return isBlankValue(v), nil
}

// Math functions

func fnSum(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range flattenNumbers(values) {
		total += n
	}
	return total, nil
}

func fnAverage(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	nums := flattenNumbers(values)
	if len(nums) == 0 {
		return math.NaN(), nil
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums)), nil
}

func fnMax(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	nums := flattenNumbers(values)
	if len(nums) == 0 {
		return math.NaN(), nil
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n > best {
			best = n
		}
	}
	return best, nil
}

func fnMin(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	nums := flattenNumbers(values)
	if len(nums) == 0 {
		return math.NaN(), nil
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if n < best {
			best = n
		}
	}
	return best, nil
}

func fnCount(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	return float64(len(flattenNumbers(values))), nil
}

func awayFromZero(x float64) float64 {
	if x >= 0 {
		return math.Ceil(x)
	}
	return math.Floor(x)
}

// makeRound builds ROUND/ROUNDUP/ROUNDDOWN from a base rounding mode.
func makeRound(mode func(float64) float64) func([]node, *env) (interface{}, error) {
	return func(args []node, env *env) (interface{}, error) {
		values, err := evalAll(args, env)
		if err != nil {
			return nil, err
		}
		x := toNumber(values[0])
		digits := toNumber(values[1])
		if math.IsNaN(x) || math.IsNaN(digits) {
			return math.NaN(), nil
		}
		scale := math.Pow(10, math.Trunc(digits))
		return mode(x*scale) / scale, nil
	}
}

func fnAbs(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	return math.Abs(toNumber(v)), nil
}

func fnSqrt(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	return math.Sqrt(toNumber(v)), nil
}

func fnPower(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	return math.Pow(toNumber(values[0]), toNumber(values[1])), nil
}

// fnLog defaults to base 10 with a single argument.
func fnLog(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	x := toNumber(values[0])
	base := 10.0
	if len(values) == 2 {
		base = toNumber(values[1])
	}
	if x <= 0 || base <= 0 || base == 1 {
		return math.NaN(), nil
	}
	return math.Log(x) / math.Log(base), nil
}

// makeSignificance builds CEILING/FLOOR; significance defaults to 1.
func makeSignificance(mode func(float64) float64) func([]node, *env) (interface{}, error) {
	return func(args []node, env *env) (interface{}, error) {
		values, err := evalAll(args, env)
		if err != nil {
			return nil, err
		}
		x := toNumber(values[0])
		sig := 1.0
		if len(values) == 2 {
			sig = toNumber(values[1])
		}
		if math.IsNaN(x) || math.IsNaN(sig) || sig == 0 {
			return math.NaN(), nil
		}
		return mode(x/sig) * sig, nil
	}
}

// Text functions

func fnTrim(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(toText(v)), nil
}

func fnConcat(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, v := range values {
		if arr, ok := v.([]interface{}); ok {
			for _, el := range arr {
				sb.WriteString(toText(el))
			}
			continue
		}
		sb.WriteString(toText(v))
	}
	return sb.String(), nil
}

// Error-handling functions

// fnIfError falls back to the second argument when the first fails to
// evaluate or produces a null-like value.
func fnIfError(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil || isBlankValue(v) {
		return evalNode(args[1], env)
	}
	return v, nil
}

// fnNotNull with one argument reports whether the value is non-null; with
// two it returns the value or the fallback.
func fnNotNull(args []node, env *env) (interface{}, error) {
	v, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return !isBlankValue(v), nil
	}
	if isBlankValue(v) {
		return evalNode(args[1], env)
	}
	return v, nil
}

func fnCoalesce(args []node, env *env) (interface{}, error) {
	for _, arg := range args {
		v, err := evalNode(arg, env)
		if err != nil {
			return nil, err
		}
		if !isBlankValue(v) {
			return v, nil
		}
	}
	return nil, nil
}

// Conditional aggregation

// matchCriteria applies a spreadsheet-style criteria value: a string like
// ">10" compares numerically, anything else compares for equality.
func matchCriteria(v interface{}, criteria interface{}) bool {
	if s, ok := criteria.(string); ok {
		for _, op := range []string{">=", "<=", "<>", "!=", ">", "<", "="} {
			if strings.HasPrefix(s, op) {
				threshold, err := strconv.ParseFloat(strings.TrimSpace(s[len(op):]), 64)
				if err != nil {
					break
				}
				n := toNumber(v)
				if math.IsNaN(n) {
					return false
				}
				switch op {
				case ">":
					return n > threshold
				case "<":
					return n < threshold
				case ">=":
					return n >= threshold
				case "<=":
					return n <= threshold
				case "=":
					return math.Abs(n-threshold) < epsilon
				default: // "<>", "!="
					return math.Abs(n-threshold) >= epsilon
				}
			}
		}
	}
	return valuesEqual(v, criteria)
}

func toArray(v interface{}) ([]interface{}, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected an array argument")
	}
	return arr, nil
}

func fnSumIf(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	rng, err := toArray(values[0])
	if err != nil {
		return nil, err
	}
	criteria := values[1]

	sumRange := rng
	if len(values) == 3 {
		if sumRange, err = toArray(values[2]); err != nil {
			return nil, err
		}
		if len(sumRange) != len(rng) {
			return nil, fmt.Errorf("SUMIF ranges have different lengths")
		}
	}

	total := 0.0
	for i, v := range rng {
		if matchCriteria(v, criteria) {
			if n := toNumber(sumRange[i]); !math.IsNaN(n) {
				total += n
			}
		}
	}
	return total, nil
}

func fnCountIf(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	rng, err := toArray(values[0])
	if err != nil {
		return nil, err
	}

	count := 0.0
	for _, v := range rng {
		if matchCriteria(v, values[1]) {
			count++
		}
	}
	return count, nil
}

// Array functions

// fnLet binds name/value pairs then evaluates the final body expression:
// LET(n1, v1, n2, v2, ..., body).
func fnLet(args []node, env *env) (interface{}, error) {
	if len(args)%2 == 0 {
		return nil, fmt.Errorf("LET expects name/value pairs followed by a body")
	}

	scope := env
	for i := 0; i+1 < len(args); i += 2 {
		name, ok := args[i].(identNode)
		if !ok {
			return nil, fmt.Errorf("LET binding name must be an identifier")
		}
		v, err := evalNode(args[i+1], scope)
		if err != nil {
			return nil, err
		}
		scope = scope.child(name.name, v)
	}

	return evalNode(args[len(args)-1], scope)
}

func fnChoose(args []node, env *env) (interface{}, error) {
	idxVal, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	idx := int(toNumber(idxVal))
	if idx < 1 || idx >= len(args) {
		return nil, fmt.Errorf("CHOOSE index %d out of range", idx)
	}
	return evalNode(args[idx], env)
}

// fnMap evaluates a body expression for each element of an array with the
// element bound to a name: MAP(array, x, body).
func fnMap(args []node, env *env) (interface{}, error) {
	arrVal, err := evalNode(args[0], env)
	if err != nil {
		return nil, err
	}
	arr, err := toArray(arrVal)
	if err != nil {
		return nil, err
	}
	param, ok := args[1].(identNode)
	if !ok {
		return nil, fmt.Errorf("MAP parameter must be an identifier")
	}

	out := make([]interface{}, 0, len(arr))
	for _, el := range arr {
		v, err := evalNode(args[2], env.child(param.name, el))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func fnIndex(args []node, env *env) (interface{}, error) {
	values, err := evalAll(args, env)
	if err != nil {
		return nil, err
	}
	arr, err := toArray(values[0])
	if err != nil {
		return nil, err
	}
	idx := int(toNumber(values[1]))
	if idx < 1 || idx > len(arr) {
		return nil, fmt.Errorf("INDEX %d out of range for array of %d", idx, len(arr))
	}
	return arr[idx-1], nil
}
