// Package clean holds peephole transformers that undo junk stack traffic
// left behind by obfuscators and by other transformers.
package clean
