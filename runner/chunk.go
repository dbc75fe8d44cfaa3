// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package runner

// chunkBody splits a body per the test's chunking plan. A chunk_size plan
// yields fixed-size chunks with a short tail. A num_chunks plan always
// yields exactly that many deliveries: the remainder goes to the trailing
// chunks so sizes differ by at most one, and a body shorter than the chunk
// count pads with leading empty chunks. No plan is a single delivery.
func chunkBody(body []byte, numChunks, chunkSize int) [][]byte {
	if chunkSize > 0 {
		if len(body) == 0 {
			return [][]byte{body}
		}
		out := make([][]byte, 0, (len(body)+chunkSize-1)/chunkSize)
		for start := 0; start < len(body); start += chunkSize {
			end := start + chunkSize
			if end > len(body) {
				end = len(body)
			}
			out = append(out, body[start:end])
		}
		return out
	}
	if numChunks <= 1 {
		return [][]byte{body}
	}
	n := numChunks
	base, rem := len(body)/n, len(body)%n
	out := make([][]byte, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i >= n-rem {
			size++
		}
		out = append(out, body[start:start+size])
		start += size
	}
	return out
}
