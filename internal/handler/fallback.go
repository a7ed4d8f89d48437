package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

const fallbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%[1]d %[2]s</title>
<style>
body{font-family:system-ui,sans-serif;background:#f5f5f5;color:#333;display:flex;align-items:center;justify-content:center;height:100vh;margin:0}
main{text-align:center}
h1{font-size:4rem;margin:0}
a{color:#0366d6}
</style>
</head>
<body>
<main>
<h1>%[1]d</h1>
<p>%[3]s</p>
<p><a href="/">Go to home page</a></p>
</main>
</body>
</html>
`

// renderFallback HTML-страница вместо редиректа
func renderFallback(c *gin.Context, status int) {
	message := "This short link does not exist or has expired."
	if status >= http.StatusInternalServerError {
		message = "Something went wrong. Please try again later."
	}
	page := fmt.Sprintf(fallbackPage, status, http.StatusText(status), message)
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}
