package labtemplar

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	expro "github.com/expr-lang/expr"
)

// Движок арифметики с единицами измерения: лексер с настраиваемым предикатом
// идентификаторов, разбор с восхождением по приоритетам и вычисление на лету.
// Выражения крошечные (одна подстановка — одно выражение), поэтому AST не строится.

// -----------------------------
// Значения
// -----------------------------

type unitTerm struct {
	display string
	def     *unitDef
	prefix  prefix
	power   int
}

// value — результат вычисления: скаляр или величина с единицами.
// num хранится нормализованным к базовым единицам СИ; valueless помечает
// «голую» единицу в выражении (µL, m^2), к которой ещё не применено число.
type value struct {
	num       float64
	dims      dimVector
	terms     []unitTerm
	valueless bool
}

func scalarValue(x float64) value {
	return value{num: x}
}

func (v value) isScalar() bool {
	return !v.valueless && v.dims.isZero() && len(v.terms) == 0
}

// concrete превращает голую единицу в величину «1 единица».
func (v value) concrete() value {
	if !v.valueless {
		return v
	}
	return applyNumber(1, v)
}

// applyNumber применяет число к голой единице. Для температурных шкал
// здесь же применяется смещение: 5 degC — это (5+273.15) K.
func applyNumber(s float64, u value) value {
	r := value{dims: u.dims, terms: u.terms}
	if len(u.terms) == 1 && u.terms[0].power == 1 && u.terms[0].def.offset != 0 {
		t := u.terms[0]
		r.num = (s + t.def.offset) * t.def.scale * t.prefix.scale
		return r
	}
	r.num = s * u.num
	return r
}

// mergeTerms складывает списки единиц, объединяя совпадающие пары единица+префикс
func mergeTerms(a, b []unitTerm) []unitTerm {
	out := make([]unitTerm, 0, len(a)+len(b))
	out = append(out, a...)
next:
	for _, t := range b {
		for i := range out {
			if out[i].def == t.def && out[i].prefix == t.prefix && out[i].display == t.display {
				out[i].power += t.power
				continue next
			}
		}
		out = append(out, t)
	}
	filtered := out[:0]
	for _, t := range out {
		if t.power != 0 {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func negTerms(ts []unitTerm) []unitTerm {
	out := make([]unitTerm, len(ts))
	for i, t := range ts {
		t.power = -t.power
		out[i] = t
	}
	return out
}

// -----------------------------
// Арифметика над значениями
// -----------------------------

var errDims = fmt.Errorf("несовместимые размерности")

func addValues(a, b value, sign float64) (value, error) {
	ac, bc := a.concrete(), b.concrete()
	if ac.dims != bc.dims {
		return value{}, errDims
	}
	terms := ac.terms
	if len(terms) == 0 {
		terms = bc.terms
	}
	return value{num: ac.num + sign*bc.num, dims: ac.dims, terms: terms}, nil
}

func mulValues(a, b value) value {
	switch {
	case a.valueless && b.valueless:
		return value{num: a.num * b.num, dims: a.dims.add(b.dims), terms: mergeTerms(a.terms, b.terms), valueless: true}
	case a.isScalar() && b.valueless:
		return applyNumber(a.num, b)
	case b.isScalar() && a.valueless:
		return applyNumber(b.num, a)
	}
	ac, bc := a.concrete(), b.concrete()
	return value{num: ac.num * bc.num, dims: ac.dims.add(bc.dims), terms: mergeTerms(ac.terms, bc.terms)}
}

func invertValue(v value) value {
	return value{num: 1 / v.num, dims: v.dims.scale(-1), terms: negTerms(v.terms), valueless: v.valueless}
}

func divValues(a, b value) value {
	return mulValues(a, invertValue(b))
}

func negValue(v value) value {
	c := v.concrete()
	c.num = -c.num
	return c
}

func powValues(a, b value) (value, error) {
	if !b.isScalar() {
		return value{}, fmt.Errorf("показатель степени должен быть скаляром")
	}
	if a.isScalar() {
		return scalarValue(math.Pow(a.num, b.num)), nil
	}
	k := int(b.num)
	if float64(k) != b.num {
		return value{}, fmt.Errorf("нецелая степень величины с единицами")
	}
	r := value{num: math.Pow(a.num, b.num), dims: a.dims.scale(k), valueless: a.valueless}
	r.terms = make([]unitTerm, len(a.terms))
	for i, t := range a.terms {
		t.power *= k
		r.terms[i] = t
	}
	return r, nil
}

// convertValue реализует оператор to: величина слева в единицах правой части
func convertValue(a, b value) (value, error) {
	ac := a.concrete()
	if len(b.terms) == 0 {
		return value{}, fmt.Errorf("правая часть to не содержит единицу")
	}
	if ac.dims != b.dims {
		return value{}, errDims
	}
	return value{num: ac.num, dims: ac.dims, terms: b.terms}, nil
}

// -----------------------------
// Лексер
// -----------------------------

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokOp
	tokTo
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func lexExpr(src string, us *UnitSystem) ([]token, error) {
	runes := []rune(src)
	var toks []token
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r >= '0' && r <= '9' || r == '.' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9':
			start := i
			for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
				i++
			}
			if i < len(runes) && runes[i] == '.' {
				i++
				for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
					i++
				}
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
					i = j
					for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
						i++
					}
				}
			}
			text := string(runes[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("некорректное число %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n})
		case us.isIdentRune(r, true):
			start := i
			i++
			for i < len(runes) && us.isIdentRune(runes[i], false) {
				i++
			}
			text := string(runes[start:i])
			if text == "to" {
				toks = append(toks, token{kind: tokTo, text: text})
			} else {
				toks = append(toks, token{kind: tokIdent, text: text})
			}
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '^' || r == '(' || r == ')' || r == ',':
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		default:
			return nil, fmt.Errorf("недопустимый символ %q", string(r))
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

// -----------------------------
// Константы и функции
// -----------------------------

var constants = map[string]float64{
	"pi":  math.Pi,
	"tau": 2 * math.Pi,
	"e":   math.E,
	"phi": math.Phi,
}

type builtinFunc struct {
	minArgs int
	maxArgs int
	apply   func(args []value) (value, error)
}

func asScalar(v value, fn string) (float64, error) {
	if !v.isScalar() {
		return 0, fmt.Errorf("%s: аргумент должен быть скаляром", fn)
	}
	return v.num, nil
}

func scalarFn(name string, f func(x float64) float64) builtinFunc {
	return builtinFunc{1, 1, func(args []value) (value, error) {
		x, err := asScalar(args[0], name)
		if err != nil {
			return value{}, err
		}
		return scalarValue(f(x)), nil
	}}
}

func trigFn(name string, f func(x float64) float64) builtinFunc {
	return builtinFunc{1, 1, func(args []value) (value, error) {
		a := args[0].concrete()
		if !a.dims.isAngleOnly() {
			return value{}, fmt.Errorf("%s: аргумент должен быть числом или углом", name)
		}
		return scalarValue(f(a.num)), nil
	}}
}

func extremeFn(name string, better func(a, b float64) bool) builtinFunc {
	return builtinFunc{1, -1, func(args []value) (value, error) {
		best := args[0].concrete()
		for _, a := range args[1:] {
			c := a.concrete()
			if c.dims != best.dims {
				return value{}, fmt.Errorf("%s: %w", name, errDims)
			}
			if better(c.num, best.num) {
				best = c
			}
		}
		return best, nil
	}}
}

var builtinFuncs = map[string]builtinFunc{
	"sqrt":  scalarFn("sqrt", math.Sqrt),
	"exp":   scalarFn("exp", math.Exp),
	"log":   scalarFn("log", math.Log),
	"log10": scalarFn("log10", math.Log10),
	"floor": scalarFn("floor", math.Floor),
	"ceil":  scalarFn("ceil", math.Ceil),
	"sin":   trigFn("sin", math.Sin),
	"cos":   trigFn("cos", math.Cos),
	"tan":   trigFn("tan", math.Tan),
	"min":   extremeFn("min", func(a, b float64) bool { return a < b }),
	"max":   extremeFn("max", func(a, b float64) bool { return a > b }),
	"abs": {1, 1, func(args []value) (value, error) {
		c := args[0].concrete()
		c.num = math.Abs(c.num)
		return c, nil
	}},
	"round": {1, 2, func(args []value) (value, error) {
		x, err := asScalar(args[0], "round")
		if err != nil {
			return value{}, err
		}
		if len(args) == 1 {
			return scalarValue(math.Round(x)), nil
		}
		n, err := asScalar(args[1], "round")
		if err != nil {
			return value{}, err
		}
		p := math.Pow(10, math.Trunc(n))
		return scalarValue(math.Round(x*p) / p), nil
	}},
}

// -----------------------------
// Парсер
// -----------------------------

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) cur() token { return p.toks[p.pos] }

func (p *exprParser) eatOp(text string) bool {
	if t := p.cur(); t.kind == tokOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseExpr(us *UnitSystem) (value, error) {
	v, err := p.parseAdditive(us)
	if err != nil {
		return value{}, err
	}
	for p.cur().kind == tokTo {
		p.pos++
		rhs, err := p.parseAdditive(us)
		if err != nil {
			return value{}, err
		}
		if v, err = convertValue(v, rhs); err != nil {
			return value{}, err
		}
	}
	return v, nil
}

func (p *exprParser) parseAdditive(us *UnitSystem) (value, error) {
	v, err := p.parseTerm(us)
	if err != nil {
		return value{}, err
	}
	for {
		var sign float64
		switch {
		case p.eatOp("+"):
			sign = 1
		case p.eatOp("-"):
			sign = -1
		default:
			return v, nil
		}
		rhs, err := p.parseTerm(us)
		if err != nil {
			return value{}, err
		}
		if v, err = addValues(v, rhs, sign); err != nil {
			return value{}, err
		}
	}
}

func (p *exprParser) parseTerm(us *UnitSystem) (value, error) {
	v, err := p.parseUnary(us)
	if err != nil {
		return value{}, err
	}
	for {
		switch {
		case p.eatOp("*"):
			rhs, err := p.parseUnary(us)
			if err != nil {
				return value{}, err
			}
			v = mulValues(v, rhs)
		case p.eatOp("/"):
			rhs, err := p.parseUnary(us)
			if err != nil {
				return value{}, err
			}
			v = divValues(v, rhs)
		case p.cur().kind == tokIdent:
			// неявное умножение: 5 degC, 2 µL, 3 kg m
			rhs, err := p.parseUnary(us)
			if err != nil {
				return value{}, err
			}
			v = mulValues(v, rhs)
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseUnary(us *UnitSystem) (value, error) {
	if p.eatOp("-") {
		v, err := p.parseUnary(us)
		if err != nil {
			return value{}, err
		}
		return negValue(v), nil
	}
	if p.eatOp("+") {
		return p.parseUnary(us)
	}
	return p.parsePower(us)
}

func (p *exprParser) parsePower(us *UnitSystem) (value, error) {
	v, err := p.parseAtom(us)
	if err != nil {
		return value{}, err
	}
	if p.eatOp("^") {
		rhs, err := p.parseUnary(us)
		if err != nil {
			return value{}, err
		}
		return powValues(v, rhs)
	}
	return v, nil
}

func (p *exprParser) parseAtom(us *UnitSystem) (value, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.pos++
		return scalarValue(t.num), nil
	case tokIdent:
		p.pos++
		if p.cur().kind == tokOp && p.cur().text == "(" {
			return p.parseCall(us, t.text)
		}
		if c, ok := constants[t.text]; ok {
			return scalarValue(c), nil
		}
		e, pfx, ok := us.findUnit(t.text)
		if !ok {
			return value{}, fmt.Errorf("неизвестный идентификатор %q", t.text)
		}
		return value{
			num:       e.def.scale * pfx.scale,
			dims:      e.def.dims,
			terms:     []unitTerm{{display: e.display, def: e.def, prefix: pfx, power: 1}},
			valueless: true,
		}, nil
	case tokOp:
		if t.text == "(" {
			p.pos++
			v, err := p.parseExpr(us)
			if err != nil {
				return value{}, err
			}
			if !p.eatOp(")") {
				return value{}, fmt.Errorf("ожидалась закрывающая скобка")
			}
			return v, nil
		}
	}
	return value{}, fmt.Errorf("неожиданный токен %q", t.text)
}

func (p *exprParser) parseCall(us *UnitSystem, name string) (value, error) {
	fn, ok := builtinFuncs[name]
	if !ok {
		return value{}, fmt.Errorf("неизвестная функция %q", name)
	}
	p.pos++ // (
	var args []value
	if !p.eatOp(")") {
		for {
			a, err := p.parseExpr(us)
			if err != nil {
				return value{}, err
			}
			args = append(args, a)
			if p.eatOp(",") {
				continue
			}
			if p.eatOp(")") {
				break
			}
			return value{}, fmt.Errorf("%s: ожидалась запятая или закрывающая скобка", name)
		}
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return value{}, fmt.Errorf("%s: неверное число аргументов", name)
	}
	return fn.apply(args)
}

// -----------------------------
// Движок
// -----------------------------

// Engine вычисляет арифметические выражения с единицами измерения
// над неизменяемой системой единиц. Сам движок состояния не имеет,
// поэтому один экземпляр можно использовать из нескольких горутин.
type Engine struct {
	us *UnitSystem
}

func NewEngine(us *UnitSystem) *Engine {
	return &Engine{us: us}
}

var (
	defaultEngineOnce sync.Once
	defaultEngineVal  *Engine
)

// DefaultEngine возвращает движок с лабораторной системой единиц.
// Система строится ровно один раз на процесс и далее только читается.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngineVal = NewEngine(NewUnitSystem())
	})
	return defaultEngineVal
}

func (e *Engine) evalValue(expr string) (value, error) {
	toks, err := lexExpr(expr, e.us)
	if err != nil {
		return value{}, err
	}
	p := &exprParser{toks: toks}
	v, err := p.parseExpr(e.us)
	if err != nil {
		return value{}, err
	}
	if p.cur().kind != tokEOF {
		return value{}, fmt.Errorf("лишний токен %q", p.cur().text)
	}
	return v, nil
}

// Result — успешно вычисленное значение, готовое к форматированию.
type Result struct {
	val value
}

// Evaluate вычисляет выражение. Любая ошибка (разбор, неизвестная единица,
// несовместимые размерности, деление на ноль) возвращается вызывающему,
// который решает, чем её заместить.
func (e *Engine) Evaluate(expr string) (Result, error) {
	v, err := e.evalValue(expr)
	if err != nil {
		return Result{}, err
	}
	v = v.concrete()
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return Result{}, fmt.Errorf("недопустимый числовой результат")
	}
	return Result{val: v}, nil
}

// Render форматирует результат; prec — число значащих цифр (0 — по умолчанию).
func (r Result) Render(prec int) Rendered {
	return formatValue(r.val, prec)
}

func (r Result) String() string {
	return r.Render(0).Text
}

// -----------------------------
// Запасной вычислитель
// -----------------------------

// evalFallback передаёт выражение expr-lang: общескалярная часть языка
// (сравнения, тернарный оператор, строки) не знает единиц измерения,
// но покрывает всё, что не покрывает движок выше. Пустое окружение
// гарантирует ошибку на неизвестных идентификаторах.
func evalFallback(expr string) (interface{}, error) {
	env := map[string]interface{}{}
	program, err := expro.Compile(expr, expro.Env(env))
	if err != nil {
		return nil, err
	}
	return expro.Run(program, env)
}

// Evaluate вычисляет выражение движком по умолчанию с запасным проходом
// через expr-lang. Это «чистая» точка входа без разбора плейсхолдеров.
func Evaluate(expr string) (Rendered, error) {
	return evaluateAny(expr, Options{})
}

func evaluateAny(expr string, o Options) (Rendered, error) {
	if res, err := DefaultEngine().Evaluate(expr); err == nil {
		return res.Render(o.precision()), nil
	}
	out, err := evalFallback(expr)
	if err != nil {
		return Rendered{}, fmt.Errorf("выражение %q: %w", expr, err)
	}
	return renderFallback(out, o.precision()), nil
}
