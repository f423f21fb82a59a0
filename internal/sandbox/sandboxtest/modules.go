// Package sandboxtest builds tiny WASI command modules for tests.
package sandboxtest

const (
	fdStdout = 1
	fdStderr = 2
)

// Stdout returns a module whose _start writes payload to stdout and returns.
func Stdout(payload string) []byte { return writeModule(fdStdout, payload) }

// Stderr returns a module whose _start writes payload to stderr and returns.
func Stderr(payload string) []byte { return writeModule(fdStderr, payload) }

// Spin returns a module whose _start never returns.
func Spin() []byte {
	// loop br 0 end end
	return module([]byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b}, nil)
}

// writeModule lays out an iovec at offset 0, the nwritten slot at 8 and the
// payload at 16, then calls fd_write(fd, 0, 1, 8).
func writeModule(fd byte, payload string) []byte {
	n := len(payload)
	iovec := []byte{16, 0, 0, 0, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}

	var data []byte
	data = append(data, 2)
	data = append(data, 0x00, 0x41, 0x00, 0x0b)
	data = append(data, uleb(len(iovec))...)
	data = append(data, iovec...)
	data = append(data, 0x00, 0x41, 0x10, 0x0b)
	data = append(data, uleb(n)...)
	data = append(data, payload...)

	body := []byte{
		0x41, fd, // i32.const fd
		0x41, 0x00, // i32.const iovs
		0x41, 0x01, // i32.const iovs_len
		0x41, 0x08, // i32.const nwritten
		0x10, 0x00, // call fd_write
		0x1a, // drop
		0x0b, // end
	}
	return module(body, data)
}

func module(body, data []byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Types: (i32 i32 i32 i32) -> i32 and () -> ().
	out = append(out, section(1, []byte{
		0x02,
		0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
		0x60, 0x00, 0x00,
	})...)

	imports := []byte{0x01}
	imports = append(imports, name("wasi_snapshot_preview1")...)
	imports = append(imports, name("fd_write")...)
	imports = append(imports, 0x00, 0x00)
	out = append(out, section(2, imports)...)

	out = append(out, section(3, []byte{0x01, 0x01})...)
	out = append(out, section(5, []byte{0x01, 0x00, 0x01})...)

	exports := []byte{0x02}
	exports = append(exports, name("memory")...)
	exports = append(exports, 0x02, 0x00)
	exports = append(exports, name("_start")...)
	exports = append(exports, 0x00, 0x01)
	out = append(out, section(7, exports)...)

	fn := append([]byte{0x00}, body...) // no locals
	code := []byte{0x01}
	code = append(code, uleb(len(fn))...)
	code = append(code, fn...)
	out = append(out, section(10, code)...)

	if data != nil {
		out = append(out, section(11, data)...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(len(content))...)
	return append(out, content...)
}

func name(s string) []byte {
	return append(uleb(len(s)), s...)
}

func uleb(v int) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
