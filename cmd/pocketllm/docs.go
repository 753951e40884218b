package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           pocketllm API
// @version         1.0
// @description     HTTP API for local LLM model downloads and chat.
//
// @contact.name   pocketllm maintainers
// @contact.url    https://github.com/your-org/pocketllm
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
