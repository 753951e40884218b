package catalog

import "pocketllm/pkg/types"

// BuiltinModels is the static descriptor list used when the remote index
// is unreachable. Mobile-friendly GGUF quantizations only.
var BuiltinModels = []types.Model{
	{
		ID:          "phi-2-q4",
		Name:        "Phi-2 (2.7B) – Q4_K_M",
		Size:        1_580_000_000,
		Description: "Microsoft Phi-2 – tiny but surprisingly capable. Great for English tasks.",
		DownloadURL: "https://huggingface.co/TheBloke/Phi-2-GGUF/resolve/main/phi-2.Q4_K_M.gguf",
		Filename:    "phi-2.Q4_K_M.gguf",
		ContextSize: 2048,
		Quant:       "Q4_K_M",
	},
	{
		ID:          "tinyllama-1.1b-q4",
		Name:        "TinyLlama 1.1B – Q4_K_M",
		Size:        637_000_000,
		Description: "Ultra-compact Llama-style model. Perfect for low-RAM devices.",
		DownloadURL: "https://huggingface.co/TheBloke/TinyLlama-1.1B-Chat-v0.3-GGUF/resolve/main/tinyllama-1.1b-chat-v0.3.Q4_K_M.gguf",
		Filename:    "tinyllama-1.1b-chat-v0.3.Q4_K_M.gguf",
		ContextSize: 2048,
		Quant:       "Q4_K_M",
	},
	{
		ID:          "gemma-2b-it-q4",
		Name:        "Gemma 2B Instruct – Q4_K_M",
		Size:        1_380_000_000,
		Description: "Google Gemma 2B – strong instruction-following, multilingual.",
		DownloadURL: "https://huggingface.co/TheBloke/gemma-2b-it-GGUF/resolve/main/gemma-2b-it.Q4_K_M.gguf",
		Filename:    "gemma-2b-it.Q4_K_M.gguf",
		ContextSize: 8192,
		Quant:       "Q4_K_M",
	},
	{
		ID:          "openchat-3.5-q4",
		Name:        "OpenChat 3.5 (3B) – Q4_K_M",
		Size:        1_950_000_000,
		Description: "Top-tier open-source chat model, rivals GPT-3.5 on many benchmarks.",
		DownloadURL: "https://huggingface.co/TheBloke/OpenChat_3.5-GGUF/resolve/main/openchat_3.5.Q4_K_M.gguf",
		Filename:    "openchat_3.5.Q4_K_M.gguf",
		ContextSize: 4096,
		Quant:       "Q4_K_M",
	},
}

// Fallback returns a copy of the builtin list so callers can mutate freely.
func Fallback() []types.Model {
	out := make([]types.Model, len(BuiltinModels))
	copy(out, BuiltinModels)
	return out
}
