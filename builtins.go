package main

// Builtin is one of the I/O routines every program can call without
// declaring it.
type Builtin struct {
	Name   string
	Params int
	Result Type
	Writes bool // takes a value and prints it
	asm    string
}

// Scratch cells and constants the built-in routines share.
const (
	cellNumber = "number"
	cellDigit  = "digit"
	newlineLbl = "newline"
	minusLbl   = "minus_sign"
)

var builtins = []*Builtin{
	{Name: "getint", Params: 0, Result: TypeInt, asm: getintAsm},
	{Name: "putint", Params: 1, Result: TypeVoid, Writes: true, asm: putintAsm},
	{Name: "getchar", Params: 0, Result: TypeChar, asm: getcharAsm},
	{Name: "putchar", Params: 1, Result: TypeVoid, Writes: true, asm: putcharAsm},
}

func lookupBuiltin(name string) *Builtin {
	for _, b := range builtins {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func isBuiltin(name string) bool {
	return lookupBuiltin(name) != nil
}

// getint reads an optionally signed decimal number from stdin, skipping
// leading blanks. The byte that ends the number is consumed.
const getintAsm = `getint:
    mov qword [number], 0
    mov r12, 0
    mov r13, 0
getint_read:
    mov rax, 0
    mov rdi, 0
    mov rsi, digit
    mov rdx, 1
    syscall
    cmp rax, 1
    jne getint_done
    movzx rbx, byte [digit]
    cmp r13, 0
    jne getint_digit
    cmp rbx, 32
    je getint_read
    cmp rbx, 10
    je getint_read
    mov r13, 1
    cmp rbx, '+'
    je getint_read
    cmp rbx, '-'
    jne getint_digit
    mov r12, 1
    jmp getint_read
getint_digit:
    cmp rbx, '0'
    jl getint_done
    cmp rbx, '9'
    jg getint_done
    sub rbx, '0'
    mov rax, qword [number]
    imul rax, 10
    add rax, rbx
    mov qword [number], rax
    jmp getint_read
getint_done:
    mov rax, qword [number]
    cmp r12, 0
    je getint_end
    neg rax
getint_end:
    ret
`

// putint prints the value in [number] in decimal followed by a newline.
const putintAsm = `putint:
    mov rax, qword [number]
    cmp rax, 0
    jge putint_convert
    neg rax
    mov qword [number], rax
    mov rax, 1
    mov rdi, 1
    mov rsi, minus_sign
    mov rdx, 1
    syscall
    mov rax, qword [number]
putint_convert:
    mov rsi, 24
    mov rcx, 10
putint_loop:
    cqo
    idiv rcx
    add rdx, '0'
    mov byte [digit + rsi], dl
    dec rsi
    cmp rax, 0
    jne putint_loop
    mov rdx, 24
    sub rdx, rsi
    lea rsi, [digit + rsi + 1]
    mov rax, 1
    mov rdi, 1
    syscall
    mov rax, 1
    mov rdi, 1
    mov rsi, newline
    mov rdx, 1
    syscall
    ret
`

// getchar reads one byte from stdin; -1 at end of input.
const getcharAsm = `getchar:
    mov rax, 0
    mov rdi, 0
    mov rsi, digit
    mov rdx, 1
    syscall
    cmp rax, 1
    jne getchar_eof
    movzx rax, byte [digit]
    ret
getchar_eof:
    mov rax, -1
    ret
`

// putchar prints the byte in [digit].
const putcharAsm = `putchar:
    mov rax, 1
    mov rdi, 1
    mov rsi, digit
    mov rdx, 1
    syscall
    ret
`
