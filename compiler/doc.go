/*

Two backends over one IR.

SimpleIR Text ->
	parse ->
Intermediate Representation (ir) ->
	codegen ->
x86-64 Assembly Text

SimpleIR Text ->
	parse ->
Intermediate Representation (ir) ->
	interp build + link ->
	run ->
exit status

Both backends must agree observably: same print_int output, same exit
status, for any program and any read_int input.

*/
package compiler
