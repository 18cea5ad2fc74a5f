package auth

// callbackPage is served to the browser after the one accepted redirect.
const callbackPage = `<html>
<head>
	<meta charset="UTF-8">
	<title>GooglePicz Connected</title>
	<style>
		body {
			background: #fafafa;
			font-family: sans-serif;
			color: #333;
			text-align: center;
			display: flex;
			flex-direction: column;
			align-items: center;
			justify-content: center;
			height: 100vh;
			margin: 0;
		}
		.box {
			background: #fff;
			padding: 30px 50px;
			border-radius: 8px;
			box-shadow: 0 2px 8px rgba(0, 0, 0, 0.15);
		}
		h1 { color: #4285f4; margin-bottom: 10px; }
		.ok { color: #0f9d58; font-size: 20px; }
	</style>
</head>
<body>
	<div class="box">
		<h1>GooglePicz</h1>
		<div class="ok">Connected!</div>
		<p>Successfully linked to Google Photos.<br>
		You can close this tab and return to GooglePicz.</p>
	</div>
</body>
</html>
`
