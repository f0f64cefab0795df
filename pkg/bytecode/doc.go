// Package bytecode models the stack-machine code that scour analyzes and
// rewrites.
//
// Code is held as a mutable doubly-linked InstructionList per Method, so
// transformers can insert, replace and remove instructions in place while
// holding references to them. Every structural change bumps the list's
// Version, which analysis caches compare against to detect stale results.
//
// # Architecture Overview
//
//   - Opcodes: a JVM-like instruction set with category-1 and category-2
//     (long/double) values, the POP/DUP family, local variable access,
//     static and instance fields, conditional jumps, invokes and returns.
//     The opcode table records stack effects and operand layout.
//
//   - Labels: OpLabel pseudo-instructions are real list members that mark
//     jump targets and exception handler boundaries. They are never executed.
//
//   - Classes: Class, Method and Field describe the program. A ClassPool
//     resolves classes by name and is read-only while a pipeline runs.
//
//   - Assembler: Assemble and Disassemble convert between instruction lists
//     and a line-oriented text syntax used by tests and by the YAML corpus
//     format.
//
//   - VM: a reference interpreter used to check that rewrites preserve
//     behavior. It supports exception handlers, static and instance fields,
//     and delegates invokes to a caller-supplied InvokeFunc.
//
// # Value Categories
//
// Long and double values occupy two stack and local slots; every other kind
// occupies one. POP2 and the DUP2 family operate on slots, so their effect on
// values depends on the widths on the stack at that point.
package bytecode
