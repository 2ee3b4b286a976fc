// Package glraster implements depth.Rasterizer with an offscreen
// OpenGL 4.1 core context.
//
// GLFW and OpenGL are only ever touched from one goroutine locked to its
// OS thread. On macOS that thread must be the main thread, so callers
// there should create the Rasterizer from main before starting workers.
package glraster

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/depth"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrClosed is returned by Rasterize after Close.
var ErrClosed = errors.New("glraster: rasterizer closed")

// Rasterizer renders depth maps on the GPU.
type Rasterizer struct {
	mu     sync.RWMutex
	closed bool
	reqs   chan func()
	done   chan struct{}

	win          *glfw.Window
	program      uint32
	uScale       int32
	uOffset      int32
	uDepth       int32
	vao          uint32
	vbo, ebo     uint32
	fbo, depthRB uint32
	fbWidth      int32
	fbHeight     int32
}

var _ depth.Rasterizer = (*Rasterizer)(nil)

// New creates a hidden window, compiles the depth program and starts the
// render thread.
func New() (*Rasterizer, error) {
	r := &Rasterizer{
		reqs: make(chan func()),
		done: make(chan struct{}),
	}
	ready := make(chan error, 1)
	go r.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rasterizer) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	if err := r.init(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	for f := range r.reqs {
		f()
	}
	r.destroy()
}

func (r *Rasterizer) init() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw.Init: %v", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.Visible, glfw.False)

	win, err := glfw.CreateWindow(1, 1, "watertight depth", nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("glfw.CreateWindow: %v", err)
	}
	r.win = win
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		r.destroy()
		return fmt.Errorf("gl.Init: %v", err)
	}

	program, err := compileProgram(vertexShader, fragmentShader)
	if err != nil {
		r.destroy()
		return err
	}
	r.program = program
	r.uScale = gl.GetUniformLocation(program, gl.Str("u_scale\x00"))
	r.uOffset = gl.GetUniformLocation(program, gl.Str("u_offset\x00"))
	r.uDepth = gl.GetUniformLocation(program, gl.Str("u_depth\x00"))

	gl.GenVertexArrays(1, &r.vao)
	gl.BindVertexArray(r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.GenBuffers(1, &r.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 3*4, gl.PtrOffset(0))

	gl.GenFramebuffers(1, &r.fbo)
	gl.GenRenderbuffers(1, &r.depthRB)
	return nil
}

func (r *Rasterizer) destroy() {
	if r.program != 0 {
		gl.DeleteProgram(r.program)
		gl.DeleteBuffers(1, &r.vbo)
		gl.DeleteBuffers(1, &r.ebo)
		gl.DeleteVertexArrays(1, &r.vao)
		gl.DeleteRenderbuffers(1, &r.depthRB)
		gl.DeleteFramebuffers(1, &r.fbo)
		r.program = 0
	}
	if r.win != nil {
		r.win.Destroy()
		r.win = nil
	}
	glfw.Terminate()
}

// Close stops the render thread and releases the GL context.
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.reqs)
	r.mu.Unlock()
	<-r.done
	return nil
}

type result struct {
	m   *depth.Map
	err error
}

// Rasterize implements depth.Rasterizer.
func (r *Rasterizer) Rasterize(ctx context.Context, vertices []mgl64.Vec3, faces [][3]int, in camera.Intrinsics, near, far float64) (*depth.Map, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("Rasterize: %v", err)
	}
	if near <= 0 || far <= near {
		return nil, fmt.Errorf("Rasterize: invalid depth range [%v, %v]", near, far)
	}
	positions := make([]float32, 0, 3*len(vertices))
	for _, v := range vertices {
		positions = append(positions, float32(v[0]), float32(v[1]), float32(v[2]))
	}
	indices := make([]uint32, 0, 3*len(faces))
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("Rasterize: face %v references vertex %v", i, idx)
			}
			indices = append(indices, uint32(idx))
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	ch := make(chan result, 1)
	job := func() {
		m, err := r.render(positions, indices, in, near, far)
		ch <- result{m: m, err: err}
	}
	select {
	case r.reqs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := <-ch
	return res.m, res.err
}

func (r *Rasterizer) resize(w, h int32) error {
	if w == r.fbWidth && h == r.fbHeight {
		return nil
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.BindRenderbuffer(gl.RENDERBUFFER, r.depthRB)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT32F, w, h)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, r.depthRB)

	// No color buffer for the depth pass.
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		r.fbWidth, r.fbHeight = 0, 0
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	r.fbWidth, r.fbHeight = w, h
	return nil
}

func (r *Rasterizer) render(positions []float32, indices []uint32, in camera.Intrinsics, near, far float64) (*depth.Map, error) {
	w, h := int32(in.Width), int32(in.Height)
	if err := r.resize(w, h); err != nil {
		return nil, err
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, r.fbo)
	gl.Viewport(0, 0, w, h)
	gl.Disable(gl.CULL_FACE)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.ClearDepth(1)
	gl.Clear(gl.DEPTH_BUFFER_BIT)

	m := depth.NewMap(in.Width, in.Height)
	if len(indices) == 0 {
		return m, nil
	}

	gl.UseProgram(r.program)
	// Pixel (col, row) is centered on the image point (col, row).
	fw, fh := float64(in.Width), float64(in.Height)
	gl.Uniform2f(r.uScale, float32(2*in.Fx/fw), float32(2*in.Fy/fh))
	gl.Uniform2f(r.uOffset, float32((2*in.Cx+1)/fw-1), float32((2*in.Cy+1)/fh-1))
	a := (far + near) / (far - near)
	b := -2 * far * near / (far - near)
	gl.Uniform2f(r.uDepth, float32(a), float32(b))

	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(positions), gl.Ptr(positions), gl.STREAM_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(indices), gl.Ptr(indices), gl.STREAM_DRAW)
	gl.DrawElements(gl.TRIANGLES, int32(len(indices)), gl.UNSIGNED_INT, gl.PtrOffset(0))

	buf := make([]float32, len(m.Data))
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.ReadPixels(0, 0, w, h, gl.DEPTH_COMPONENT, gl.FLOAT, gl.Ptr(buf))
	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("render: GL error 0x%x", code)
	}

	// Rows come back bottom-up, which is already image row order since
	// row 0 maps to the bottom of the viewport.
	for i, d := range buf {
		if d >= 1 {
			continue
		}
		ndc := 2*float64(d) - 1
		m.Data[i] = b / (ndc - a)
	}
	return m, nil
}

const vertexShader = `#version 410 core
layout(location = 0) in vec3 position;

uniform vec2 u_scale;
uniform vec2 u_offset;
uniform vec2 u_depth;

void main() {
	float z = position.z;
	gl_Position = vec4(u_scale * position.xy + u_offset * z, u_depth.x * z + u_depth.y, z);
}
`

const fragmentShader = `#version 410 core
void main() {
}
`

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetProgramInfoLog(program, logLen, nil, &log[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %s", log)
	}
	return program, nil
}

func compileShader(source string, shaderType uint32, name string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetShaderInfoLog(shader, logLen, nil, &log[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s shader: %s", name, log)
	}
	return shader, nil
}
