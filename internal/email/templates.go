package email

// Шаблон письма об активации. Язык текста подбирается по полю Language,
// поэтому шаблон держит оба варианта.
const activationTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  {{if eq .Language "en"}}
  <h2>Welcome, {{.FirstName}}!</h2>
  <p>Your payment was confirmed and your <b>{{.PlanName}}</b> subscription is now active.</p>
  <ul>
    <li>Amount: ${{printf "%.2f" .AmountUSD}} USD</li>
    <li>Invoice: {{.Reference}}</li>
    <li>Active until: {{.ExpiresAt}}</li>
  </ul>
  <p>Thank you for your purchase.</p>
  {{else}}
  <h2>¡Bienvenido, {{.FirstName}}!</h2>
  <p>Tu pago fue confirmado y tu suscripción <b>{{.PlanName}}</b> ya está activa.</p>
  <ul>
    <li>Monto: ${{printf "%.2f" .AmountUSD}} USD</li>
    <li>Factura: {{.Reference}}</li>
    <li>Activa hasta: {{.ExpiresAt}}</li>
  </ul>
  <p>Gracias por tu compra.</p>
  {{end}}
</body>
</html>
`
