package ocean

// Images are plain buffers of interleaved float channels, row-major. Kernels
// receive the row stride of every image they index.

const clCommonSource = `
#define GRAVITY 9.81f
#define PI_F 3.14159265358979f

inline int wrapi(int v, int n) { v %= n; return v < 0 ? v + n : v; }

inline float2 ld2(__global const float* img, int stride, int x, int y) {
    return vload2(y * stride + x, img);
}
inline void st2(__global float* img, int stride, int x, int y, float2 v) {
    vstore2(v, y * stride + x, img);
}
inline float4 ld4(__global const float* img, int stride, int x, int y) {
    return vload4(y * stride + x, img);
}
inline void st4(__global float* img, int stride, int x, int y, float4 v) {
    vstore4(v, y * stride + x, img);
}

__kernel void copy_rg(__global const float* src, __global float* dst, const int width)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    st2(dst, width, x, y, ld2(src, width, x, y));
}

__kernel void clear(__global float* img, const int width, const int channels)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    int base = (y * width + x) * channels;
    for (int c = 0; c < channels; c++) {
        img[base + c] = 0.0f;
    }
}

__kernel void reduce_minmax(
    __global const float* in,
    __global float* out,
    const int in_width,
    const int out_width)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float2 a = ld2(in, in_width, 2 * x, 2 * y);
    float2 b = ld2(in, in_width, 2 * x + 1, 2 * y);
    float2 c = ld2(in, in_width, 2 * x, 2 * y + 1);
    float2 d = ld2(in, in_width, 2 * x + 1, 2 * y + 1);
    float lo = min(min(a.x, b.x), min(c.x, d.x));
    float hi = max(max(a.y, b.y), max(c.y, d.y));
    st2(out, out_width, x, y, (float2)(lo, hi));
}
`

const clSpectralSource = `
inline uint reverse_bits(uint n, int bits) {
    uint r = 0;
    for (int j = 0; j < bits; j++) {
        r = (r << 1) | (n & 1u);
        n >>= 1;
    }
    return r;
}

__kernel void twiddle_init(__global float* tw, const int n, const int bits)
{
    int stage = get_global_id(0);
    int i = get_global_id(1);
    int stages = bits - 1;
    float4 t;
    if (stage == 0) {
        uint b = (uint)(i & ~3);
        t = (float4)(reverse_bits(b, bits), reverse_bits(b + 1u, bits),
                     reverse_bits(b + 2u, bits), reverse_bits(b + 3u, bits));
    } else {
        int h = 1 << (stage + 1);
        int j = i % (2 * h);
        int k = j % h;
        float theta = PI_F * (float)k / (float)h;
        float2 w = (float2)(cos(theta), sin(theta));
        if (j < h) {
            t = (float4)(w.x, w.y, (float)i, (float)(i + h));
        } else {
            t = (float4)(-w.x, -w.y, (float)(i - h), (float)i);
        }
    }
    st4(tw, stages, stage, i, t);
}

inline float2 wave_vector(int x, int y, int n, float l) {
    return (float2)(2.0f * PI_F * (float)(x - n / 2) / l, 2.0f * PI_F * (float)(y - n / 2) / l);
}

inline float directional(float2 k, float2 wind, float suppress) {
    float kl = length(k);
    float v = length(wind);
    if (kl < 1e-6f || v < 1e-6f) {
        return 0.0f;
    }
    float c = dot(k, wind) / (kl * v);
    float d = c * c;
    return c < 0.0f ? d * suppress : d;
}

inline float phillips(float2 k, float amp, float2 wind, float suppress) {
    float k2 = dot(k, k);
    float v = length(wind);
    if (k2 < 1e-12f || v < 1e-6f) {
        return 0.0f;
    }
    float lw = v * v / GRAVITY;
    float small = lw / 1000.0f;
    float p = amp * 1e-4f * exp(-1.0f / (k2 * lw * lw)) / (k2 * k2);
    return p * directional(k, wind, suppress) * exp(-k2 * small * small);
}

inline float jonswap(float2 k, float amp, float2 wind, float suppress) {
    float kl = length(k);
    float v = length(wind);
    if (kl < 1e-6f || v < 1e-6f) {
        return 0.0f;
    }
    float w = sqrt(GRAVITY * kl);
    float wp = 0.855f * GRAVITY / v;
    float sigma = w > wp ? 0.09f : 0.07f;
    float d = (w - wp) / (sigma * wp);
    float r = exp(-0.5f * d * d);
    float ratio = wp / w;
    float s = amp * 1e-4f * GRAVITY * GRAVITY / (w * w * w * w * w) *
              exp(-1.25f * ratio * ratio * ratio * ratio) * pow(3.3f, r);
    return s * (GRAVITY / (2.0f * w)) / kl * directional(k, wind, suppress);
}

inline float2 gaussian_pair(float u1, float u2) {
    float r = sqrt(-2.0f * log(max(u1, 1e-7f)));
    return (float2)(r * cos(2.0f * PI_F * u2), r * sin(2.0f * PI_F * u2));
}

#define SPECTRUM_KERNEL(NAME, DENSITY)                                              \
__kernel void NAME(__global const float* noise, __global float* h0k,               \
                   const int n, const float l, const float amp,                    \
                   const float wind_x, const float wind_y, const float suppress)   \
{                                                                                  \
    int x = get_global_id(0);                                                      \
    int y = get_global_id(1);                                                      \
    float2 k = wave_vector(x, y, n, l);                                            \
    float2 wind = (float2)(wind_x, wind_y);                                        \
    float dk = 2.0f * PI_F / l;                                                    \
    float4 u = ld4(noise, n, x, y);                                                \
    float2 g1 = gaussian_pair(u.x, u.y);                                           \
    float2 g2 = gaussian_pair(u.z, u.w);                                           \
    float ap = sqrt(DENSITY(k, amp, wind, suppress) / 2.0f) * dk * dk;             \
    float am = sqrt(DENSITY(-k, amp, wind, suppress) / 2.0f) * dk * dk;            \
    st4(h0k, n, x, y, (float4)(g1.x * ap, g1.y * ap, g2.x * am, -g2.y * am));      \
}

SPECTRUM_KERNEL(spectrum_phillips, phillips)
SPECTRUM_KERNEL(spectrum_jonswap, jonswap)

__kernel void evolve(
    __global const float* h0k,
    __global float* dx,
    __global float* dy,
    __global float* dz,
    const int n,
    const float l,
    const float t)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float2 k = wave_vector(x, y, n, l);
    float kl = length(k);
    float phase = sqrt(GRAVITY * kl) * t;
    float c = cos(phase);
    float s = sin(phase);
    float4 h = ld4(h0k, n, x, y);
    float re = h.x * c - h.y * s + h.z * c + h.w * s;
    float im = h.x * s + h.y * c - h.z * s + h.w * c;
    st2(dz, n, x, y, (float2)(re, im));
    if (kl < 1e-6f) {
        st2(dx, n, x, y, (float2)(0.0f, 0.0f));
        st2(dy, n, x, y, (float2)(0.0f, 0.0f));
        return;
    }
    float2 u = k / kl;
    st2(dx, n, x, y, (float2)(u.x * im, -u.x * re));
    st2(dy, n, x, y, (float2)(u.y * im, -u.y * re));
}

__kernel void fft_butterfly(
    __global const float* tw,
    __global const float* in,
    __global float* out,
    const int stage,
    const int dir,
    const int n)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    int pos = dir == 0 ? x : y;
    int line = dir == 0 ? y : x;
    int stages = 0;
    for (int v = n; v > 2; v >>= 1) {
        stages++;
    }
    float4 t = ld4(tw, stages, stage, pos);
#define FETCH(i) (dir == 0 ? ld2(in, n, (i), line) : ld2(in, n, line, (i)))
    float2 r;
    if (stage == 0) {
        float2 a0 = FETCH((int)t.x);
        float2 a1 = FETCH((int)t.y);
        float2 a2 = FETCH((int)t.z);
        float2 a3 = FETCH((int)t.w);
        float2 s01 = a0 + a1;
        float2 d01 = a0 - a1;
        float2 s23 = a2 + a3;
        float2 d23 = a2 - a3;
        switch (pos & 3) {
        case 0: r = s01 + s23; break;
        case 1: r = (float2)(d01.x - d23.y, d01.y + d23.x); break;
        case 2: r = s01 - s23; break;
        default: r = (float2)(d01.x + d23.y, d01.y - d23.x); break;
        }
    } else {
        float2 top = FETCH((int)t.z);
        float2 bot = FETCH((int)t.w);
        r = (float2)(top.x + t.x * bot.x - t.y * bot.y, top.y + t.x * bot.y + t.y * bot.x);
    }
#undef FETCH
    st2(out, n, x, y, r);
}

__kernel void inversion(
    __global const float* dx,
    __global const float* dy,
    __global const float* dz,
    __global float* disp,
    __global float* zr,
    const int n)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float sign = ((x + y) & 1) ? -1.0f : 1.0f;
    float h = sign * ld2(dz, n, x, y).x;
    st4(disp, n, x, y, (float4)(sign * ld2(dx, n, x, y).x, sign * ld2(dy, n, x, y).x, h, 0.0f));
    st2(zr, n, x, y, (float2)(h, h));
}

__kernel void normals(
    __global const float* disp,
    __global float* normal,
    const int n,
    const float cell)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float hl = ld4(disp, n, wrapi(x - 1, n), y).z;
    float hr = ld4(disp, n, wrapi(x + 1, n), y).z;
    float hb = ld4(disp, n, x, wrapi(y - 1, n)).z;
    float ht = ld4(disp, n, x, wrapi(y + 1, n)).z;
    float3 nv = normalize((float3)(-(hr - hl) / (2.0f * cell), -(ht - hb) / (2.0f * cell), 1.0f));
    st4(normal, n, x, y, (float4)(nv, 0.0f));
}
`

const clFoamThresholdSource = `
inline float crest(float h, float zmin, float zmax, float threshold) {
    float span = max(zmax - zmin, 1e-6f);
    return max(0.0f, (h - zmin) / span * threshold - (threshold - 1.0f));
}

__kernel void foam_threshold(
    __global const float* noise,
    __global float* disp,
    __global float* normal,
    const int n,
    const float zmin,
    const float zmax,
    const float threshold,
    const float t)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    int idx = y * n + x;
    float jitter = ld4(noise, n, wrapi(x + (int)(t * 4.0f), n), y).x - 0.5f;
    float f = clamp(crest(disp[idx * 4 + 2], zmin, zmax, threshold) + jitter * 0.2f, 0.0f, 1.0f);
    disp[idx * 4 + 3] = f;
    normal[idx * 4 + 3] = f;
}
`

const clFluidSource = `
inline float crest(float h, float zmin, float zmax, float threshold) {
    float span = max(zmax - zmin, 1e-6f);
    return max(0.0f, (h - zmin) / span * threshold - (threshold - 1.0f));
}

inline float4 sample_wrap(__global const float* img, int w, float px, float py) {
    float fx = floor(px);
    float fy = floor(py);
    float ax = px - fx;
    float ay = py - fy;
    int x0 = wrapi((int)fx, w);
    int y0 = wrapi((int)fy, w);
    int x1 = wrapi(x0 + 1, w);
    int y1 = wrapi(y0 + 1, w);
    float4 top = mix(ld4(img, w, x0, y0), ld4(img, w, x1, y0), ax);
    float4 bot = mix(ld4(img, w, x0, y1), ld4(img, w, x1, y1), ax);
    return mix(top, bot, ay);
}

__kernel void velocity_seed(__global const float* fluid, __global float* out, const int w)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float m = length(ld4(fluid, w, x, y).xy);
    st2(out, w, x, y, (float2)(m, m));
}

__kernel void advect(
    __global const float* src,
    __global float* dst,
    const int w,
    const float dt,
    const float damping)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float4 v = ld4(src, w, x, y);
    float4 s = sample_wrap(src, w, (float)x - dt * v.x, (float)y - dt * v.y);
    float k = 1.0f / (1.0f + damping * dt);
    st4(dst, w, x, y, (float4)(s.x * k, s.y * k, s.z, 0.0f));
}

__kernel void divergence(__global const float* fluid, __global float* div, const int w)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float d = 0.5f * (ld4(fluid, w, wrapi(x + 1, w), y).x - ld4(fluid, w, wrapi(x - 1, w), y).x +
                      ld4(fluid, w, x, wrapi(y + 1, w)).y - ld4(fluid, w, x, wrapi(y - 1, w)).y);
    div[y * w + x] = d;
}

__kernel void jacobi(
    __global const float* p_in,
    __global float* p_out,
    __global const float* div,
    const int w)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float sum = p_in[y * w + wrapi(x - 1, w)] + p_in[y * w + wrapi(x + 1, w)] +
                p_in[wrapi(y - 1, w) * w + x] + p_in[wrapi(y + 1, w) * w + x];
    p_out[y * w + x] = (sum - div[y * w + x]) * 0.25f;
}

__kernel void project(
    __global const float* fluid,
    __global const float* p,
    __global float* out,
    const int w,
    const float dt,
    const float revert)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float gx = 0.5f * (p[y * w + wrapi(x + 1, w)] - p[y * w + wrapi(x - 1, w)]);
    float gy = 0.5f * (p[wrapi(y + 1, w) * w + x] - p[wrapi(y - 1, w) * w + x]);
    float4 v = ld4(fluid, w, x, y);
    st4(out, w, x, y, (float4)(v.x - gx, v.y - gy, v.z / (1.0f + revert * dt), 0.0f));
}

__kernel void foam_inject(
    __global float* fluid,
    __global const float* noise,
    __global float* disp,
    __global float* normal,
    const int n,
    const int mult,
    const float zmin,
    const float zmax,
    const float threshold,
    const float wind_x,
    const float wind_y,
    const float dt,
    const float vel_scale,
    const float rate)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    int w = n * mult;
    int idx = y * n + x;
    float inj = crest(disp[idx * 4 + 2], zmin, zmax, threshold) * (0.75f + 0.25f * noise[idx * 4]);
    int fx = x * mult + mult / 2;
    int fy = y * mult + mult / 2;
    float4 c = ld4(fluid, w, fx, fy);
    c.x += wind_x * inj * dt * vel_scale;
    c.y += wind_y * inj * dt * vel_scale;
    c.z += inj * rate * dt;
    st4(fluid, w, fx, fy, c);
    float f = clamp(c.z, 0.0f, 1.0f);
    disp[idx * 4 + 3] = f;
    normal[idx * 4 + 3] = f;
}
`
