package vm_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mna/clox/internal/config"
	"github.com/mna/clox/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig mirrors spec §4.I's guidance that stress-GC collection must be
// the default in test builds, to surface missing roots.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.StressGC = true
	cfg.InitialHeapBytes = 1 << 16
	return cfg
}

func run(t *testing.T, src string) (stdout, stderr string, result vm.Result) {
	t.Helper()
	var out, errOut bytes.Buffer
	m := vm.New(testConfig(), &out, &errOut)
	result = m.Interpret(context.Background(), src)
	return out.String(), errOut.String(), result
}

func TestArithmeticPrecedence(t *testing.T) {
	out, errOut, result := run(t, "print 1 + 2 * 3;")
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "7\n", out)
}

func TestClosureCounterKeepsPrivateState(t *testing.T) {
	out, errOut, result := run(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
var c1 = makeCounter();
var c2 = makeCounter();
print c1();
print c1();
print c2();
`)
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "1\n2\n1\n", out)
}

func TestClassInheritanceWithSuper(t *testing.T) {
	out, errOut, result := run(t, `
class Animal {
  init(name) {
    this.name = name;
  }
  speak() {
    return "...";
  }
  describe() {
    return this.name + " says " + this.speak();
  }
}
class Dog < Animal {
  speak() {
    return "Woof, " + super.speak();
  }
}
var d = Dog("Rex");
print d.describe();
`)
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "Rex says Woof, ...\n", out)
}

func TestForLoopDesugarsToWhile(t *testing.T) {
	out, errOut, result := run(t, `
var sum = 0;
for (var i = 0; i < 5; i = i + 1) {
  sum = sum + i;
}
print sum;
`)
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "10\n", out)
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	_, errOut, result := run(t, `
fun add(a, b) { return a + b; }
add(1);
`)
	assert.Equal(t, vm.RuntimeError, result)
	assert.Contains(t, errOut, "Expected 2 arguments but got 1.")
}

func TestTopLevelReturnIsCompileError(t *testing.T) {
	_, errOut, result := run(t, "return 1;")
	assert.Equal(t, vm.CompileError, result)
	assert.Contains(t, errOut, "Can't return from top-level code.")
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, errOut, result := run(t, "print nope;")
	assert.Equal(t, vm.RuntimeError, result)
	assert.Contains(t, errOut, "Undefined variable 'nope'.")
}

func TestStringConcatenationInterns(t *testing.T) {
	out, errOut, result := run(t, `
var a = "foo" + "bar";
var b = "foobar";
print a == b;
`)
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "true\n", out)
}

// TestStressGCSurvivesDeepAllocation exercises spec §8's "program runs
// correctly under aggressive collection" property: every string/closure
// allocation in a non-trivial program triggers a collection under
// StressGC, and the final observable result must still be correct.
func TestStressGCSurvivesDeepAllocation(t *testing.T) {
	var src strings.Builder
	src.WriteString("var total = 0;\n")
	src.WriteString("for (var i = 0; i < 50; i = i + 1) {\n")
	src.WriteString(`  var s = "item-" + "x";` + "\n")
	src.WriteString("  total = total + 1;\n")
	src.WriteString("}\n")
	src.WriteString("print total;\n")

	out, errOut, result := run(t, src.String())
	require.Equal(t, vm.Ok, result, errOut)
	assert.Equal(t, "50\n", out)
}

func TestNativeClockAndSqrt(t *testing.T) {
	out, errOut, result := run(t, `
print sqrt(9);
print clock() >= 0;
`)
	require.Equal(t, vm.Ok, result, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "3", lines[0])
	assert.Equal(t, "true", lines[1])
}
