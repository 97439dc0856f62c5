// Package ir defines the typed SSA intermediate representation that the
// transforms consume and rewrite.
//
// # Structure
//
// A Module owns every object of a shader program in arenas addressed by
// stable integer handles:
//   - Types: structural type definitions, deduplicated by the TypeManager
//   - Values: constants, instruction results, function and block parameters
//   - Instructions: typed operations grouped into Blocks
//   - Functions: a parameter list and a body Block, optionally an entry point
//
// The Root block holds module-scope declarations, primarily variables.
// Blocks own their instruction lists and control instructions (if, loop,
// switch) own their nested blocks. Every value keeps a use list, so a
// rewrite can find and repair each operand that refers to it.
//
// # Building and Rewriting
//
// A Builder creates instructions at an insertion point set for the
// duration of a closure. Rewrites follow two phases: collect a worklist of
// instructions, then build replacements, rewire uses with
// ReplaceAllUsesWith and Destroy the originals.
//
// # Textual Form
//
// Disassemble renders a module deterministically. The text is the oracle
// that transform tests compare against:
//
//	%b1 = block {  # root
//	  %wgvar:ptr<workgroup, u32, read_write> = var
//	}
//
//	%main = @compute @workgroup_size(1, 1, 1) func():void -> %b2 {
//	  %b2 = block {
//	    %3:u32 = load %wgvar
//	    ret
//	  }
//	}
//
// # Validation
//
// Validate checks the structural and type invariants every transform must
// preserve: use lists mirror operand slots, blocks end in terminators, exits
// target an enclosing control instruction and accesses are well typed.
package ir
