package parser

const bacPurchaseBody = "Estimado cliente,\r\n\r\n" +
	"Le informamos que se ha realizado una transacci=C3=B3n con su tarjeta ****4821\r\n\r\n" +
	"Fecha\r\n2025/10/30-16:13:05\r\n\r\n" +
	"Comercio\r\nMonto\r\nSUPER 99 VIA ESPA=\r\nNA\r\nUSD 14\r\n\r\n" +
	"Autorizaci=C3=B3n: 123456\r\n"

const bacRefundBody = "Reembolso aplicado a su tarjeta terminada en 4821. " +
	"Comercio: AMAZON MKTPLACE Monto: USD 25.99"

const bacNoMerchantBody = "Su tarjeta ****4821 fue usada por USD 10.00"

const banistmoPurchaseBody = `<html><body><table>` +
	`<tr><td>Fecha y hora:</td><td>30-oct-2025 a las 4:13 pm</td></tr>` +
	`<tr><td>Lugar:</td><td><strong>ATHANASIOU CASCO</strong></td></tr>` +
	`<tr><td>Monto:</td><td>USD 1,372.10</td></tr>` +
	`<tr><td>Tarjeta terminada en 7788</td></tr>` +
	`<tr><td>N=C3=BAmero de comprobante:</td><td>998877</td></tr>` +
	`</table></body></html>`

const banistmoCardPaymentBody = `<p>Notificaci&oacute;n de pago a tarjeta de cr&eacute;dito.</p>` +
	`<p>Producto a pagar: *2627</p><p>Monto: USD 250.00</p>` +
	`<p>Fecha y hora: 01-nov-2025 a las 9:05 am</p>` +
	`<p>N&uacute;mero de comprobante: 445566</p>`

const banisiLoanBody = "Confirmaci=F3n de Pago a Pr=E9stamo\n" +
	"Estimado cliente, su pago a pr=E9stamo fue aplicado.\n" +
	"N=FAmero de Pr=E9stamo: 1020-3344\n" +
	"Fecha: 06-10-2025 Hora: 7:47:26 p.m.\n" +
	"Monto pagado: $436.93\n" +
	"N=FAmero de Comprobante: 76751297\n"

const banisiDebitBody = "<p>D&eacute;bito autom&aacute;tico a cuenta</p><p>Fecha: 15-09-2025</p><p>Cuota mensual: $120.00</p>"

const claveTransferBody = "Transferencia Clave exitosa. Destinatario: Juan Perez Monto: $50.00 " +
	"Fecha: 2025-11-03 Referencia: 99887766"

const yappySentFixture = "<p>&iexcl;Enviaste un Yappy!</p><p>A: Juan Perez (61234567)</p>" +
	"<p>Monto: $25.00</p><p>Fecha: 02 nov 2025 06:17 p. m.</p>" +
	"<p>Confirmaci&oacute;n: BIKEM-75792146</p>"

const yappyReceivedFixture = "Recibiste un Yappy\nDe: Maria Lopez (67654321)\nMonto: $10.50\n" +
	"Fecha: 03 nov 2025 12:01 a. m.\nConfirmación: QWERT-12345678"
