package frontend

// builtins are the names bound in Python's builtins module. Calls to them
// never resolve to a project definition.
var builtins = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true,
	"bytearray": true, "bytes": true, "callable": true, "chr": true,
	"classmethod": true, "compile": true, "complex": true, "copyright": true,
	"credits": true, "delattr": true, "dict": true, "dir": true,
	"divmod": true, "enumerate": true, "eval": true, "exec": true,
	"exit": true, "filter": true, "float": true, "format": true,
	"frozenset": true, "getattr": true, "globals": true, "hasattr": true,
	"hash": true, "help": true, "hex": true, "id": true, "input": true,
	"int": true, "isinstance": true, "issubclass": true, "iter": true,
	"len": true, "license": true, "list": true, "locals": true, "map": true,
	"max": true, "memoryview": true, "min": true, "next": true,
	"object": true, "oct": true, "open": true, "ord": true, "pow": true,
	"print": true, "property": true, "quit": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true,
	"setattr": true, "slice": true, "sorted": true, "staticmethod": true,
	"str": true, "sum": true, "super": true, "tuple": true, "type": true,
	"vars": true, "zip": true, "__import__": true, "__build_class__": true,

	"BaseException": true, "Exception": true, "ArithmeticError": true,
	"AssertionError": true, "AttributeError": true, "EOFError": true,
	"ImportError": true, "IndexError": true, "KeyError": true,
	"KeyboardInterrupt": true, "LookupError": true, "MemoryError": true,
	"NameError": true, "NotImplementedError": true, "OSError": true,
	"OverflowError": true, "RecursionError": true, "RuntimeError": true,
	"StopIteration": true, "SyntaxError": true, "SystemExit": true,
	"TypeError": true, "ValueError": true, "ZeroDivisionError": true,
	"FileNotFoundError": true, "PermissionError": true, "TimeoutError": true,
}

// IsBuiltin reports whether name is a Python builtin.
func IsBuiltin(name string) bool {
	return builtins[name]
}
